package asyncrt

import (
	"fmt"
	"strconv"
)

type ValueKind uint8

const (
	ValueAbsent ValueKind = iota
	ValueText
	ValueInteger
	ValueError
)

func (k ValueKind) String() string {
	switch k {
	case ValueAbsent:
		return "undefined"
	case ValueText:
		return "text"
	case ValueInteger:
		return "integer"
	case ValueError:
		return "error"
	default:
		return "value_unknown"
	}
}

// Value is the result a completion hands to its Callback. The zero Value is
// Undefined.
type Value struct {
	kind ValueKind
	text string
	n    uint64
	err  error
}

func Undefined() Value {
	return Value{}
}

func Text(s string) Value {
	return Value{kind: ValueText, text: s}
}

func Integer(n uint64) Value {
	return Value{kind: ValueInteger, n: n}
}

// Failure carries an error produced while computing a Value. A nil err
// yields Undefined.
func Failure(err error) Value {
	if err == nil {
		return Value{}
	}
	return Value{kind: ValueError, err: err}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) IsUndefined() bool {
	return v.kind == ValueAbsent
}

func (v Value) AsText() (string, bool) {
	return v.text, v.kind == ValueText
}

func (v Value) AsInteger() (uint64, bool) {
	return v.n, v.kind == ValueInteger
}

// Err returns the error carried by a Failure, nil otherwise.
func (v Value) Err() error {
	return v.err
}

func (v Value) String() string {
	switch v.kind {
	case ValueText:
		return strconv.Quote(v.text)
	case ValueInteger:
		return strconv.FormatUint(v.n, 10)
	case ValueError:
		return fmt.Sprintf("error(%v)", v.err)
	default:
		return "undefined"
	}
}
