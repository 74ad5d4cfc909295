package screening

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind discriminates the comparable value types a rule can see.
type Kind int

// Value kinds. Absent stands for a missing field and participates in
// comparisons as an ordinary value, not an error. Null is a present-but-null
// field, distinct from a missing one. Other covers JSON shapes (objects) that
// no operator can match.
const (
	KindAbsent Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindList
	KindOther
)

// Value is a small tagged type covering string | number | bool | list plus
// the absent and non-comparable cases. Criteria targets and resolved
// profile/answer fields are both normalized to it so the operators can do an
// exhaustive match.
type Value struct {
	kind    Kind
	str     string
	num     float64
	boolean bool
	list    []Value
}

// Value constructors.
func Absent() Value               { return Value{kind: KindAbsent} }
func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, boolean: b} }
func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// FromAny normalizes a decoded JSON value. Objects map to KindOther; nil maps
// to KindNull since a present-but-null field is not the same as a missing one.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Value{kind: KindNull}
	case string:
		return StringValue(t)
	case float64:
		return NumberValue(t)
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case bool:
		return BoolValue(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Value{kind: KindList, list: items}
	case []string:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = StringValue(e)
		}
		return Value{kind: KindList, list: items}
	default:
		return Value{kind: KindOther}
	}
}

// UnmarshalJSON decodes any JSON shape into a tagged Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Kind returns the value's discriminator.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value stands for a missing field.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Equal implements strict scalar equality. Two nulls compare equal; lists,
// objects and absent values are never equal to anything, mirroring reference
// semantics in the screener documents this engine consumes.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.boolean == other.boolean
	case KindNull:
		return true
	default:
		return false
	}
}

// AsNumber coerces the value to a number. Numbers and numeric strings coerce
// to themselves, booleans to 1 and 0, null to 0. Everything else reports
// false and never satisfies an ordered comparison.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindBool:
		if v.boolean {
			return 1, true
		}
		return 0, true
	case KindNull:
		return 0, true
	default:
		return 0, false
	}
}

// Contains reports whether a list value contains target as a scalar member.
// Non-list values contain nothing.
func (v Value) Contains(target Value) bool {
	if v.kind != KindList {
		return false
	}
	for _, item := range v.list {
		if item.Equal(target) {
			return true
		}
	}
	return false
}

// SharesAny reports whether two list values share at least one scalar member.
func (v Value) SharesAny(other Value) bool {
	if v.kind != KindList || other.kind != KindList {
		return false
	}
	for _, item := range v.list {
		if other.Contains(item) {
			return true
		}
	}
	return false
}
