// Package digest computes the content digests that anchor certificates to
// exact input bytes: module text digests and per-fact identity digests.
//
// Both digests are FNV-1a 64-bit rendered as 16 lowercase hex digits with a
// kind prefix. The construction is the cross-implementation contract of the
// certificate system: two independent runtimes hashing the same bytes must
// produce byte-identical digest strings. Digests are pure functions of their
// inputs with no process-wide state; in particular they never involve
// in-memory numeric identifiers.
package digest

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Digest kind prefixes.
const (
	ModulePrefix = "fnv1a64:"
	FactPrefix   = "factfnv1a64:"
)

// Module digests the UTF-8 bytes of canonical module text.
func Module(text string) string {
	return ModulePrefix + hex64([]byte(text))
}

// Fact digests a fact's identity: module, schema, instance, relation, and
// field values in declared order. The canonical concatenation is
//
//	module=M|schema=S|instance=I|relation=R|fields=f1=v1;f2=v2;...
//
// Field order follows the relation declaration, so structurally identical
// facts digest identically regardless of how any run numbered its nodes.
func Fact(module, schema, instance, relation string, fields []FieldValue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "module=%s|schema=%s|instance=%s|relation=%s|fields=", module, schema, instance, relation)
	for _, fv := range fields {
		fmt.Fprintf(&b, "%s=%s;", fv.Field, fv.Value)
	}
	return FactPrefix + hex64([]byte(b.String()))
}

// FieldValue is one (field name, bound value) pair in declaration order.
type FieldValue struct {
	Field string
	Value string
}

// hex64 is FNV-1a 64: offset basis 0xcbf29ce484222325, prime
// 0x00000100000001b3, rendered as fixed-width lowercase hex.
func hex64(data []byte) string {
	h := fnv.New64a()
	h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}

// IsModuleDigest reports whether s carries the module digest prefix with a
// well-formed 16-hex-digit payload.
func IsModuleDigest(s string) bool {
	return wellFormed(s, ModulePrefix)
}

// IsFactDigest reports whether s carries the fact digest prefix with a
// well-formed 16-hex-digit payload.
func IsFactDigest(s string) bool {
	return wellFormed(s, FactPrefix)
}

func wellFormed(s, prefix string) bool {
	if !strings.HasPrefix(s, prefix) {
		return false
	}
	rest := s[len(prefix):]
	if len(rest) != 16 {
		return false
	}
	for _, c := range rest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
