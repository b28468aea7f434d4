// Package canonical implements the deterministic serialization that underlies
// every hash and every signed message in the sigil lineage protocol.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Marshal is the mandatory canonicalization choke point for the lineage core.
//
// Sigil values MUST be canonical before hashing, signing, or CID derivation.
// The canonical form is JSON with object keys sorted lexicographically, array
// order preserved, no insignificant whitespace, and numbers emitted exactly as
// their minimal JSON representation. Two structurally equal values serialize
// to identical bytes regardless of field order.
func Marshal(v any) ([]byte, error) {
	// Round-trip through encoding/json so Go structs, maps and json.RawMessage
	// all collapse to the same canonical shape. UseNumber keeps numeric tokens
	// verbatim instead of going through float64.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: value is not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalString is Marshal returning a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
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
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errors.New("canonical: unsupported value type")
	}
	return nil
}
