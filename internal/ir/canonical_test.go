package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	data, err := MarshalCanonical(Object{
		"b": Int(2),
		"a": Int(1),
		"c": Int(3),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(data))
}

// Supplementary-plane characters encode as surrogate pairs in UTF-16, so
// U+1D11E (first unit 0xD834) must sort before U+FB03 (0xFB03) even though
// its code point is larger. Byte-order sorting gets this wrong.
func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	data, err := MarshalCanonical(Object{
		"ﬃ":          Int(1), // ffi ligature
		"\U0001D11E": Int(2), // musical G clef
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001D11E\":2,\"ﬃ\":1}", string(data))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// e + combining acute normalizes to the precomposed form.
	decomposed := "é"
	data, err := MarshalCanonical(String(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "\"é\"", string(data))
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	data, err := MarshalCanonical(String("a\"b\\c\nd\u0001e"))
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\nd\u0001e"`, string(data))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical(String("<a>&</a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a>&</a>"`, string(data))
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 3.14})
	assert.Error(t, err)
}

func TestMarshalCanonicalRejectsNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": nil})
	assert.Error(t, err)
}

func TestMarshalCanonicalNested(t *testing.T) {
	data, err := MarshalCanonical(Object{
		"arr": Array{Int(1), String("two"), Bool(true)},
		"obj": Object{"k": String("v")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"arr":[1,"two",true],"obj":{"k":"v"}}`, string(data))
}

func TestUnmarshalRoundTrip(t *testing.T) {
	original := Object{
		"name":  String("axiograph"),
		"count": Int(42),
		"tags":  Array{String("a"), String("b")},
	}
	data := MustMarshalCanonical(original)
	parsed, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(MustMarshalCanonical(parsed)))
}

func TestUnmarshalRejectsFloatJSON(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"x": 1.5}`))
	assert.Error(t, err)
}

func TestUnmarshalBigIntegerPreserved(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"n": 9007199254740993}`))
	require.NoError(t, err)
	obj := v.(Object)
	assert.Equal(t, Int(9007199254740993), obj["n"])
}
