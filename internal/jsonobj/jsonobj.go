// Package jsonobj writes and reads JSON objects whose member order matters.
//
// The open parts of a message (custom APNs and Webpush keys) go through an
// ordered map here so the caller's insertion order survives on the wire.
package jsonobj

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is an insertion-ordered JSON object with opaque values.
type Object = orderedmap.OrderedMap[string, json.RawMessage]

// NewObject returns an empty Object.
func NewObject() *Object {
	return orderedmap.New[string, json.RawMessage]()
}

// Member is a single key/value pair of a JSON object.
type Member struct {
	Key   string
	Value json.RawMessage
}

// Writer accumulates object members in call order. Writing a key twice
// replaces the value in its original position. The first marshal error
// sticks and is reported by Bytes.
type Writer struct {
	obj *Object
	err error
}

// Field marshals v and appends it under key.
func (w *Writer) Field(key string, v any) {
	if w.err != nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("marshal %q: %w", key, err)
		return
	}
	w.Raw(key, raw)
}

// Raw appends an already-encoded value under key.
func (w *Writer) Raw(key string, raw json.RawMessage) {
	if w.err != nil {
		return
	}
	if w.obj == nil {
		w.obj = NewObject()
	}
	w.obj.Set(key, raw)
}

// Len is the number of members written so far.
func (w *Writer) Len() int {
	if w.obj == nil {
		return 0
	}
	return w.obj.Len()
}

// Bytes closes the object and returns its encoding.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.obj == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(w.obj)
}

// ErrNotObject is returned by Members when the input is not a JSON object.
var ErrNotObject = errors.New("json value is not an object")

// Decode parses a JSON object keeping its document order.
func Decode(data []byte) (*Object, error) {
	if Kind(data) != 'o' {
		return nil, ErrNotObject
	}
	obj := NewObject()
	if err := obj.UnmarshalJSON(bytes.TrimSpace(data)); err != nil {
		return nil, err
	}
	return obj, nil
}

// Members decodes a JSON object into its members in document order.
func Members(data []byte) ([]Member, error) {
	obj, err := Decode(data)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, obj.Len())
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		members = append(members, Member{Key: pair.Key, Value: pair.Value})
	}
	return members, nil
}

// Kind reports the JSON kind of raw by its first significant byte:
// 'o' object, 'a' array, 's' string, 'n' null, 'b' boolean, 'd' number.
// Empty input reports 0.
func Kind(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	switch trimmed[0] {
	case '{':
		return 'o'
	case '[':
		return 'a'
	case '"':
		return 's'
	case 'n':
		return 'n'
	case 't', 'f':
		return 'b'
	default:
		return 'd'
	}
}
