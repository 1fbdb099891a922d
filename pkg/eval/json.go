// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// evalJSONOp implements spec.md §4.5's JSON operator group: -> extracts an
// element keeping JSON encoding, ->> extracts and coerces to text, #> and
// #>> do the same but with rnode a path array, @> and <@ test containment.
func evalJSONOp(op string, l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}
	if l.Kind != types.KindJSON && l.Kind != types.KindJSONB {
		return types.Value{}, kverrors.TypeError{Reason: "left operand of " + op + " must be json or jsonb"}
	}

	var doc any
	if err := json.Unmarshal([]byte(l.Text), &doc); err != nil {
		return types.Value{}, kverrors.TypeError{Reason: "invalid json document: " + err.Error()}
	}

	switch op {
	case "->", "->>":
		elem, ok := jsonIndex(doc, r)
		if !ok {
			return types.Null(), nil
		}
		return jsonResult(l.Kind, elem, op == "->>")
	case "#>", "#>>":
		path, err := jsonPath(r)
		if err != nil {
			return types.Value{}, err
		}
		cur := doc
		for _, p := range path {
			next, ok := jsonIndex(cur, types.Text(p))
			if !ok {
				return types.Null(), nil
			}
			cur = next
		}
		return jsonResult(l.Kind, cur, op == "#>>")
	case "@>", "<@":
		containee := doc
		containerVal := r
		if op == "<@" {
			var rd any
			if r.Kind != types.KindJSON && r.Kind != types.KindJSONB {
				return types.Value{}, kverrors.TypeError{Reason: "right operand of <@ must be json or jsonb"}
			}
			if err := json.Unmarshal([]byte(r.Text), &rd); err != nil {
				return types.Value{}, kverrors.TypeError{Reason: "invalid json document: " + err.Error()}
			}
			return types.Boolean(jsonContains(rd, containee)), nil
		}
		if containerVal.Kind != types.KindJSON && containerVal.Kind != types.KindJSONB {
			return types.Value{}, kverrors.TypeError{Reason: "right operand of @> must be json or jsonb"}
		}
		var rd any
		if err := json.Unmarshal([]byte(containerVal.Text), &rd); err != nil {
			return types.Value{}, kverrors.TypeError{Reason: "invalid json document: " + err.Error()}
		}
		return types.Boolean(jsonContains(doc, rd)), nil
	default:
		return types.Value{}, kverrors.UnknownFunctionError{Name: "operator " + op}
	}
}

// jsonIndex extracts a field (object) or element (array, via integer-
// valued key) from doc, matching Postgres's -> semantics.
func jsonIndex(doc any, key types.Value) (any, bool) {
	switch d := doc.(type) {
	case map[string]any:
		k, err := coerceToText(key)
		if err != nil {
			return nil, false
		}
		v, ok := d[k]
		return v, ok
	case []any:
		idx, err := keyToIndex(key)
		if err != nil {
			return nil, false
		}
		if idx < 0 {
			idx += len(d)
		}
		if idx < 0 || idx >= len(d) {
			return nil, false
		}
		return d[idx], true
	default:
		return nil, false
	}
}

func keyToIndex(key types.Value) (int, error) {
	switch key.Kind {
	case types.KindInt32:
		return int(key.I32), nil
	case types.KindInt64:
		return int(key.I64), nil
	case types.KindText:
		return strconv.Atoi(key.Text)
	default:
		return 0, kverrors.TypeError{Reason: "invalid json array index"}
	}
}

func jsonPath(v types.Value) ([]string, error) {
	if v.Kind != types.KindArray {
		return nil, kverrors.TypeError{Reason: "json path operand must be an array of text"}
	}
	out := make([]string, 0, len(v.Elems))
	for _, e := range v.Elems {
		s, err := coerceToText(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// jsonResult re-encodes elem, returning JSON/JSONB (->/#>) or Text (->>/
// #>>, which coerces scalars to their plain text form and composites to
// their JSON text).
func jsonResult(parentKind types.Kind, elem any, asText bool) (types.Value, error) {
	if !asText {
		b, err := json.Marshal(elem)
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: err.Error()}
		}
		if parentKind == types.KindJSONB {
			canonical, err := CanonicalizeJSON(string(b))
			if err != nil {
				return types.Value{}, err
			}
			return types.JSONB(canonical), nil
		}
		return types.JSON(string(b)), nil
	}

	switch v := elem.(type) {
	case nil:
		return types.Null(), nil
	case string:
		return types.Text(v), nil
	case bool:
		return types.Text(strconv.FormatBool(v)), nil
	case float64:
		return types.Text(strconv.FormatFloat(v, 'g', -1, 64)), nil
	default:
		b, err := json.Marshal(elem)
		if err != nil {
			return types.Value{}, kverrors.TypeError{Reason: err.Error()}
		}
		return types.Text(string(b)), nil
	}
}

// jsonContains implements @>/<@'s containment rule: objects contain when
// every key-value pair in the containee is present in the container
// (recursively); arrays contain when every containee element is present
// in the container array; scalars contain when equal.
func jsonContains(container, containee any) bool {
	switch c := containee.(type) {
	case map[string]any:
		cont, ok := container.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range c {
			cv, ok := cont[k]
			if !ok || !jsonContains(cv, v) {
				return false
			}
		}
		return true
	case []any:
		cont, ok := container.([]any)
		if !ok {
			return false
		}
		for _, ce := range c {
			found := false
			for _, cv := range cont {
				if jsonContains(cv, ce) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return jsonScalarEqual(container, containee)
	}
}

func jsonScalarEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(ab) == string(bb)
}

// CanonicalizeJSON re-serializes JSON text with object keys sorted, the
// canonical form JSONB storage uses so two texturally different but
// structurally equal documents compare and hash identically.
func CanonicalizeJSON(text string) (string, error) {
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return "", kverrors.TypeError{Reason: "invalid json document: " + err.Error()}
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return kverrors.TypeError{Reason: err.Error()}
		}
		buf.Write(b)
	}
	return nil
}
