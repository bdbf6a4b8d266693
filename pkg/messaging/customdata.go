package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-fcm-relay/internal/jsonobj"
)

// CustomData is an ordered set of caller-defined keys with opaque JSON
// values. It backs the open parts of APNs and Webpush payloads. Keys keep
// their first insertion position; setting an existing key replaces its value.
// The zero value is ready to use.
type CustomData struct {
	obj *jsonobj.Object
}

// Set marshals value and stores it under key.
func (c *CustomData) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("custom key %q: %w", key, err)
	}
	c.SetRaw(key, raw)
	return nil
}

// SetRaw stores an already-encoded JSON value under key.
func (c *CustomData) SetRaw(key string, raw json.RawMessage) {
	if c.obj == nil {
		c.obj = jsonobj.NewObject()
	}
	c.obj.Set(key, append(json.RawMessage(nil), raw...))
}

// Get returns the encoded value stored under key.
func (c CustomData) Get(key string) (json.RawMessage, bool) {
	if c.obj == nil {
		return nil, false
	}
	return c.obj.Get(key)
}

// Has reports whether key is present.
func (c CustomData) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key if present.
func (c *CustomData) Delete(key string) {
	if c.obj != nil {
		c.obj.Delete(key)
	}
}

// Keys returns the keys in insertion order.
func (c CustomData) Keys() []string {
	var keys []string
	c.Each(func(key string, _ json.RawMessage) { keys = append(keys, key) })
	return keys
}

// Len is the number of keys.
func (c CustomData) Len() int {
	if c.obj == nil {
		return 0
	}
	return c.obj.Len()
}

// Each calls fn for every key in insertion order.
func (c CustomData) Each(fn func(key string, raw json.RawMessage)) {
	if c.obj == nil {
		return
	}
	for pair := c.obj.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

func (c CustomData) MarshalJSON() ([]byte, error) {
	if c.obj == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.obj)
}

func (c *CustomData) UnmarshalJSON(data []byte) error {
	obj, err := jsonobj.Decode(data)
	if err != nil {
		return err
	}
	c.obj = nil
	if obj.Len() > 0 {
		c.obj = obj
	}
	return nil
}

// mergeCustom appends custom keys to an encoded object. Keys already present
// in known win and the custom duplicate is dropped.
func mergeCustom(known []byte, custom CustomData) ([]byte, error) {
	if custom.Len() == 0 {
		return known, nil
	}
	members, err := jsonobj.Members(known)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(members))
	var w jsonobj.Writer
	for _, m := range members {
		seen[m.Key] = true
		w.Raw(m.Key, m.Value)
	}
	custom.Each(func(key string, raw json.RawMessage) {
		if !seen[key] {
			w.Raw(key, raw)
		}
	})
	return w.Bytes()
}

// splitCustom decodes data into the known struct dst and returns every
// member whose key is not in known.
func splitCustom(data []byte, dst any, known map[string]bool) (CustomData, error) {
	var custom CustomData
	if err := json.Unmarshal(data, dst); err != nil {
		return custom, err
	}
	members, err := jsonobj.Members(data)
	if err != nil {
		return custom, err
	}
	for _, m := range members {
		if !known[m.Key] {
			custom.SetRaw(m.Key, m.Value)
		}
	}
	return custom, nil
}
