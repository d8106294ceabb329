// Package canonicaljson produces deterministic JSON encodings: sorted
// object keys, ASCII-escaped strings, compact separators. The same
// logical value always encodes to the same bytes, which is what request
// hashing and HMAC signing over JSON bodies depend on.
package canonicaljson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Marshal encodes v as canonical JSON: object keys sorted, non-ASCII
// characters escaped, no insignificant whitespace.
func Marshal(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("canonicaljson: encode: %w", err)
	}

	out := escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n"))
	return out, nil
}

// Hash returns the hex sha256 digest of v's canonical JSON encoding.
func Hash(v interface{}) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// normalize round-trips v through encoding/json so that arbitrary Go
// values (structs, maps with non-string-keyed-but-JSON-tagged fields,
// etc.) become the plain map[string]interface{} / []interface{} /
// scalar tree that orderedMap below knows how to sort and re-encode.
func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicaljson: unmarshal: %w", err)
	}
	return sortValue(generic), nil
}

// sortValue rewrites maps into orderedMap so json.Marshal emits their
// keys in sorted order; encoding/json otherwise sorts map[string]any
// keys already, but we make it explicit and handle nested values.
func sortValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		om := make(orderedMap, 0, len(val))
		for _, k := range keys {
			om = append(om, orderedPair{key: k, value: sortValue(val[k])})
		}
		return om
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sortValue(item)
		}
		return out
	default:
		return val
	}
}

type orderedPair struct {
	key   string
	value interface{}
}

type orderedMap []orderedPair

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pair := range om {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(pair.key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(pair.value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// escapeNonASCII rewrites any byte sequence above 0x7F as a \uXXXX
// escape. encoding/json already escapes HTML-sensitive runes when
// SetEscapeHTML(true) is set, but leaves multi-byte UTF-8 untouched;
// canonical JSON requires pure ASCII output.
func escapeNonASCII(in []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(in); {
		r := in[i]
		if r < 0x80 {
			buf.WriteByte(r)
			i++
			continue
		}
		rn, size := utf8.DecodeRune(in[i:])
		if rn <= 0xFFFF {
			fmt.Fprintf(&buf, `\u%04x`, rn)
		} else {
			rn -= 0x10000
			hi := 0xD800 + (rn >> 10)
			lo := 0xDC00 + (rn & 0x3FF)
			fmt.Fprintf(&buf, `\u%04x\u%04x`, hi, lo)
		}
		i += size
	}
	return buf.Bytes()
}
