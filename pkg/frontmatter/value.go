package frontmatter

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindDate
	KindDateTime
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindStringList:
		return "list"
	default:
		return "unknown"
	}
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339Nano
)

// Value is a typed metadata value. The zero Value is an empty String.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	list []string

	// raw keeps the source literal of non-string scalars so untouched
	// values are written back exactly as they were read.
	raw string
}

// String returns a String value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a Number value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a Boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Date returns a Date value. Only the calendar day of t is kept.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateTime returns a DateTime value.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

// StringList returns a StringList value.
func StringList(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindStringList, list: cp}
}

func (v Value) Kind() Kind { return v.kind }

// Str returns the payload of a String value.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the payload of a Number value.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the payload of a Boolean value.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBoolean }

// Time returns the payload of a Date or DateTime value.
func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate || v.kind == KindDateTime
}

// List returns a copy of the payload of a StringList value.
func (v Value) List() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// Equal compares two values including their kind. Number 3 and String "3"
// are different values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
	case KindDateTime:
		return v.t.Equal(o.t)
	case KindStringList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Text flattens the value into plain text.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.literal()
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDate, KindDateTime:
		return v.literal()
	case KindStringList:
		return strings.Join(v.list, ", ")
	}
	return ""
}

// literal is the scalar text written into a header for non-string kinds.
func (v Value) literal() string {
	switch v.kind {
	case KindNumber:
		if v.raw != "" {
			return v.raw
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBoolean:
		if v.raw != "" {
			return v.raw
		}
		return strconv.FormatBool(v.b)
	case KindDate:
		if v.raw != "" {
			return v.raw
		}
		return v.t.Format(dateLayout)
	case KindDateTime:
		if v.raw != "" {
			return v.raw
		}
		return v.t.Format(dateTimeLayout)
	}
	return v.str
}

// MarshalJSON renders the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBoolean:
		return json.Marshal(v.b)
	case KindStringList:
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.Text())
	}
}
