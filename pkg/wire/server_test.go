// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStartupParamsDefaultsUserToAdmin(t *testing.T) {
	body := []byte("database\x00kvpg\x00\x00")
	user, err := parseStartupParams(body)
	require.NoError(t, err)
	require.Equal(t, "admin", user)
}

func TestParseStartupParamsReadsUser(t *testing.T) {
	body := []byte("user\x00alice\x00database\x00kvpg\x00\x00")
	user, err := parseStartupParams(body)
	require.NoError(t, err)
	require.Equal(t, "alice", user)
}

func TestEncodeInt32RoundTripsNegativeOne(t *testing.T) {
	buf := encodeInt32(-1)
	require.Len(t, buf, 4)
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf)
}

func TestCStringStopsAtNul(t *testing.T) {
	require.Equal(t, "hello", cString([]byte("hello\x00garbage")))
}
