package jsonvalue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode_NilIsEmpty(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
}

func TestEncode_Scalar(t *testing.T) {
	assert.Equal(t, `"alice"`, Encode("alice"))
	assert.Equal(t, "42", Encode(42))
	assert.Equal(t, "true", Encode(true))
}

func TestEncode_ObjectKeysSorted(t *testing.T) {
	v := map[string]any{"z": 1, "a": 2, "m": 3}
	assert.Equal(t, `{"a":2,"m":3,"z":1}`, Encode(v))
}

func TestEncode_EqualValuesProduceEqualEncodings(t *testing.T) {
	a := map[string]any{"x": 1, "y": "hi"}
	b := map[string]any{"y": "hi", "x": 1}
	assert.Equal(t, Encode(a), Encode(b))
}

func TestEncode_List(t *testing.T) {
	assert.Equal(t, `[1,2,3]`, Encode([]any{1, 2, 3}))
}
