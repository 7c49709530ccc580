package asyncrt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	var zero Value
	assert.True(t, zero.IsUndefined())
	assert.Equal(t, Undefined(), zero)
	assert.Equal(t, "undefined", zero.String())

	s, ok := Text("hello").AsText()
	assert.True(t, ok)
	assert.Equal(t, "hello", s)
	_, ok = Text("hello").AsInteger()
	assert.False(t, ok)

	n, ok := Integer(42).AsInteger()
	assert.True(t, ok)
	assert.Equal(t, uint64(42), n)
	assert.Equal(t, "42", Integer(42).String())
	_, ok = Integer(42).AsText()
	assert.False(t, ok)

	err := errors.New("boom")
	f := Failure(err)
	assert.Equal(t, ValueError, f.Kind())
	assert.Equal(t, err, f.Err())
	assert.Nil(t, Text("x").Err())
	assert.True(t, Failure(nil).IsUndefined())
}
