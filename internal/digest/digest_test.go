package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Known FNV-1a 64 vectors. These pin the cross-implementation contract:
// another runtime hashing the same bytes must produce these exact strings.
func TestModuleKnownVectors(t *testing.T) {
	assert.Equal(t, "fnv1a64:cbf29ce484222325", Module(""))
	assert.Equal(t, "fnv1a64:a430d84680aabd0b", Module("hello"))
	assert.Equal(t, "fnv1a64:d67db99a9de67ec0", Module("module m {}\n"))
}

func TestFactKnownVector(t *testing.T) {
	got := Fact("family", "People", "base", "Parent", []FieldValue{
		{Field: "from", Value: "alice"},
		{Field: "to", Value: "bob"},
	})
	assert.Equal(t, "factfnv1a64:784612e95fa90e67", got)
}

func TestModuleDeterministic(t *testing.T) {
	text := "module m { schema S { type T } }"
	require.Equal(t, Module(text), Module(text))
	assert.NotEqual(t, Module(text), Module(text+" "))
}

func TestFactFieldOrderSignificant(t *testing.T) {
	a := Fact("m", "s", "i", "R", []FieldValue{{Field: "a", Value: "1"}, {Field: "b", Value: "2"}})
	b := Fact("m", "s", "i", "R", []FieldValue{{Field: "b", Value: "2"}, {Field: "a", Value: "1"}})
	assert.NotEqual(t, a, b)
}

func TestWellFormedness(t *testing.T) {
	assert.True(t, IsModuleDigest(Module("x")))
	assert.True(t, IsFactDigest(Fact("m", "s", "i", "R", nil)))

	assert.False(t, IsModuleDigest("fnv1a64:xyz"))
	assert.False(t, IsModuleDigest("fnv1a64:ABCDEF0123456789")) // uppercase
	assert.False(t, IsModuleDigest("sha256:cbf29ce484222325"))
	assert.False(t, IsFactDigest(Module("x")))
	assert.False(t, IsModuleDigest(Fact("m", "s", "i", "R", nil)))
	assert.False(t, IsModuleDigest("fnv1a64:cbf29ce48422232")) // 15 digits
}
