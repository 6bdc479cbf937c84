package frontmatter

import (
	"bytes"
	"encoding/json"
)

// Metadata is an ordered mapping of header keys to typed values.
// The zero value is an empty mapping ready to use.
type Metadata struct {
	keys   []string
	values map[string]Value
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

// Len returns the number of entries.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in header order.
func (m *Metadata) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (Value, bool) {
	if m == nil || m.values == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (m *Metadata) Set(key string, value Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key if present.
func (m *Metadata) Delete(key string) {
	if m == nil || m.values == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	out := NewMetadata()
	if m == nil {
		return out
	}
	for _, k := range m.keys {
		v := m.values[k]
		if v.kind == KindStringList {
			v.list = append([]string(nil), v.list...)
		}
		out.Set(k, v)
	}
	return out
}

// Merge overlays every entry of other onto m.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// Without returns a copy of m lacking the given keys.
func (m *Metadata) Without(keys ...string) *Metadata {
	out := m.Clone()
	for _, k := range keys {
		out.Delete(k)
	}
	return out
}

// Equal reports whether both mappings hold the same keys with equal typed
// values. Key order is ignored.
func (m *Metadata) Equal(other *Metadata) bool {
	if m.Len() != other.Len() {
		return false
	}
	for _, k := range m.Keys() {
		a, _ := m.Get(k)
		b, ok := other.Get(k)
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}

// Title returns the "title" entry as text, or "" when absent.
func (m *Metadata) Title() string {
	v, ok := m.Get("title")
	if !ok {
		return ""
	}
	return v.Text()
}

// MarshalJSON writes the mapping as a JSON object preserving key order.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v, _ := m.Get(k)
		vb, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
