package ir

// Built-in executable typing rules. The set is fixed: a typing constraint
// names one of these, and the checker verifies any explicit facts of the
// constraint's relation against the rule's arithmetic, without requiring
// that such facts exist.
//
// Each rule reads the relation's first field as the input attribute and its
// last field as the output attribute; node names must parse as integers for
// the fact to be in the rule's domain.
const (
	// TypingSucc: output = input + 1.
	TypingSucc = "succ"
	// TypingDouble: output = input * 2.
	TypingDouble = "double"
)

// KnownTypingRule reports whether name is one of the built-in typing rules.
func KnownTypingRule(name string) bool {
	switch name {
	case TypingSucc, TypingDouble:
		return true
	}
	return false
}
