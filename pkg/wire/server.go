// SPDX-License-Identifier: Apache-2.0

// Package wire implements kvpgserver's client-facing listener (spec.md §6
// "External Interfaces"): a minimal PostgreSQL wire protocol v3 server
// speaking the simple query subprotocol. No example repo in the corpus
// implements a Postgres server (lib/pq and jackc/pgx/v5 are both client
// libraries, and pgroll only ever dials Postgres, never accepts
// connections as one), so this package is built directly against the
// wire format itself rather than adapted from any retrieved source; it is
// the one place in kvpg where the standard library (net, bufio,
// encoding/binary) is the only available tool, not a fallback from one.
package wire

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/kvpg/kvpg/internal/sqlstate"
	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/executor"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/session"
	"github.com/kvpg/kvpg/pkg/types"
)

const (
	protoVersion3     = 0x00030000
	sslRequestCode    = 80877103
	gssencRequestCode = 80877104
)

// Server accepts Postgres-wire client connections and executes statements
// against namespace through pool. Pool is dialed per connection by
// Keyspace; BootstrapAdmin has already run against it by the time Serve
// is called (cmd/serve.go's responsibility, spec.md §6).
type Server struct {
	Pool      *kvstore.Pool
	Keyspace  string
	Namespace string
	// Password, if non-empty, is accepted as a fallback credential for
	// any username not present in the pkg/auth user registry (a simple
	// deployment mode that doesn't require provisioning per-user
	// accounts before the first connection).
	Password string
}

// ListenAndServe accepts connections on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("wire: listen %s: %w", addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	c := &connState{conn: conn, rw: bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))}

	store, err := s.Pool.Get(ctx, s.Keyspace)
	if err != nil {
		log.Printf("wire: dial keyspace %q: %v", s.Keyspace, err)
		return
	}

	username, err := c.negotiateStartup()
	if err != nil {
		log.Printf("wire: startup: %v", err)
		return
	}

	if err := c.authenticate(ctx, store, s.Namespace, s.Password, username); err != nil {
		c.writeError(err)
		c.flush()
		return
	}

	sess := session.New(store, s.Namespace, username)
	defer sess.Close(ctx)

	c.writeMessage('R', encodeInt32(0)) // AuthenticationOk
	c.writeMessage('Z', []byte{'I'})
	if err := c.flush(); err != nil {
		return
	}

	c.serve(ctx, sess)
}

func (c *connState) authenticate(ctx context.Context, store kvstore.Store, namespace, globalPassword, username string) error {
	c.writeMessage('R', encodeInt32(3)) // AuthenticationCleartextPassword
	if err := c.flush(); err != nil {
		return err
	}
	typ, body, err := c.readMessage()
	if err != nil {
		return err
	}
	if typ != 'p' {
		return fmt.Errorf("wire: expected PasswordMessage, got %q", typ)
	}
	password := cString(body)

	txn, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer txn.Rollback(ctx)

	_, err = auth.Authenticate(ctx, txn, namespace, username, password)
	if err == nil {
		return nil
	}
	// A global password is a fallback for usernames with no registry
	// entry, not a bypass for a wrong password on one that exists.
	if _, ok := err.(kverrors.UserNotFoundError); ok && globalPassword != "" && password == globalPassword {
		return nil
	}
	return err
}

// connState holds one connection's framing state.
type connState struct {
	conn net.Conn
	rw   *bufio.ReadWriter
}

// negotiateStartup consumes the initial untyped length-prefixed message:
// either an SSLRequest/GSSENCRequest (answered 'N', no TLS offered by this
// listener) or the real StartupMessage, returning the "user" parameter.
func (c *connState) negotiateStartup() (string, error) {
	for {
		length, err := readUint32(c.rw)
		if err != nil {
			return "", err
		}
		if length < 4 {
			return "", fmt.Errorf("wire: invalid startup length %d", length)
		}
		body := make([]byte, length-4)
		if _, err := io.ReadFull(c.rw, body); err != nil {
			return "", err
		}
		code := binary.BigEndian.Uint32(body[:4])
		switch code {
		case sslRequestCode, gssencRequestCode:
			if _, err := c.conn.Write([]byte{'N'}); err != nil {
				return "", err
			}
			continue
		case protoVersion3:
			return parseStartupParams(body[4:])
		default:
			return "", fmt.Errorf("wire: unsupported protocol version %#x", code)
		}
	}
}

func parseStartupParams(body []byte) (string, error) {
	params := map[string]string{}
	for len(body) > 0 && body[0] != 0 {
		key, rest, err := readCString(body)
		if err != nil {
			return "", err
		}
		val, rest2, err := readCString(rest)
		if err != nil {
			return "", err
		}
		params[key] = val
		body = rest2
	}
	user := params["user"]
	if user == "" {
		user = auth.DefaultAdminUser
	}
	return user, nil
}

// serve runs the simple query loop until the client disconnects or sends
// Terminate.
func (c *connState) serve(ctx context.Context, sess *session.Session) {
	for {
		typ, body, err := c.readMessage()
		if err != nil {
			return
		}
		switch typ {
		case 'Q':
			c.handleQuery(ctx, sess, cString(body))
		case 'X':
			return
		default:
			c.writeError(fmt.Errorf("wire: only the simple query protocol is supported (got message %q)", typ))
			c.writeMessage('Z', []byte{'I'})
			if c.flush() != nil {
				return
			}
		}
	}
}

func (c *connState) handleQuery(ctx context.Context, sess *session.Session, sql string) {
	result, err := executor.Execute(ctx, sess, sql)
	if err != nil {
		c.writeError(err)
		c.writeMessage('Z', []byte{sessionTxnStatus(sess)})
		c.flush()
		return
	}

	if result.Skipped {
		c.writeCommandComplete("SKIPPED")
		c.writeMessage('Z', []byte{sessionTxnStatus(sess)})
		c.flush()
		return
	}

	if result.Columns != nil {
		c.writeRowDescription(result.Columns)
		for _, row := range result.Rows {
			c.writeDataRow(row)
		}
		c.writeCommandComplete(fmt.Sprintf("SELECT %d", len(result.Rows)))
	} else {
		c.writeCommandComplete(fmt.Sprintf("OK %d", result.RowsAffected))
	}
	c.writeMessage('Z', []byte{sessionTxnStatus(sess)})
	c.flush()
}

func sessionTxnStatus(sess *session.Session) byte {
	if sess.State() == session.Active {
		if sess.InFailedTransaction {
			return 'E'
		}
		return 'T'
	}
	return 'I'
}

func (c *connState) writeRowDescription(columns []string) {
	buf := make([]byte, 0, 64)
	buf = append(buf, encodeInt16(len(columns))...)
	for _, col := range columns {
		buf = append(buf, []byte(col)...)
		buf = append(buf, 0)
		buf = append(buf, make([]byte, 18)...) // table oid, attnum, type oid, typlen, typmod, format: all zero (unknown/text)
	}
	c.writeMessage('T', buf)
}

func (c *connState) writeDataRow(row types.Row) {
	cells := types.RowToJSONCells(row)
	buf := encodeInt16(len(cells))
	for _, cell := range cells {
		if cell.IsNull() {
			buf = append(buf, encodeInt32(-1)...)
			continue
		}
		v, _ := cell.Get()
		buf = append(buf, encodeInt32(len(v))...)
		buf = append(buf, []byte(v)...)
	}
	c.writeMessage('D', buf)
}

func (c *connState) writeCommandComplete(tag string) {
	buf := append([]byte(tag), 0)
	c.writeMessage('C', buf)
}

func (c *connState) writeError(err error) {
	code := sqlstate.ForError(err)
	buf := []byte{}
	buf = appendField(buf, 'S', "ERROR")
	buf = appendField(buf, 'C', string(code))
	buf = appendField(buf, 'M', err.Error())
	buf = append(buf, 0)
	c.writeMessage('E', buf)
}

func appendField(buf []byte, field byte, value string) []byte {
	buf = append(buf, field)
	buf = append(buf, []byte(value)...)
	buf = append(buf, 0)
	return buf
}

func (c *connState) writeMessage(typ byte, body []byte) {
	c.rw.WriteByte(typ)
	binary.Write(c.rw, binary.BigEndian, uint32(len(body)+4))
	c.rw.Write(body)
}

func (c *connState) flush() error { return c.rw.Flush() }

func (c *connState) readMessage() (byte, []byte, error) {
	typ, err := c.rw.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	length, err := readUint32(c.rw)
	if err != nil {
		return 0, nil, err
	}
	if length < 4 {
		return 0, nil, fmt.Errorf("wire: invalid message length %d", length)
	}
	body := make([]byte, length-4)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return 0, nil, err
	}
	return typ, body, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readCString(b []byte) (string, []byte, error) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), b[i+1:], nil
		}
	}
	return "", nil, fmt.Errorf("wire: unterminated string")
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func encodeInt16(n int) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(n))
	return buf
}

func encodeInt32(n int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(int32(n)))
	return buf
}
