package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one conformance scenario: a module, an import policy, and
// the expectations to hold against the resulting store.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Module is the module text under test, inline.
	Module string `yaml:"module"`

	// ExpectLoadError, when set, asserts the module fails to load with an
	// error containing this substring. No further steps run.
	ExpectLoadError string `yaml:"expect_load_error,omitempty"`

	// Import configures the import transaction. Defaults to strict mode.
	Import ImportSpec `yaml:"import,omitempty"`

	// ExpectViolations are substrings that must each appear in some
	// violation from a full constraint check. Empty means the check must
	// be clean.
	ExpectViolations []string `yaml:"expect_violations,omitempty"`

	// Queries run against the imported store.
	Queries []QueryStep `yaml:"queries,omitempty"`

	// Certificates are emitted and then re-verified against the module
	// text through the reference verifier.
	Certificates []CertStep `yaml:"certificates,omitempty"`

	// ExportRoundtrip exports the store, re-parses and re-imports the
	// export, and asserts the second export is byte-identical.
	ExportRoundtrip bool `yaml:"export_roundtrip,omitempty"`
}

// ImportSpec configures the scenario's import transaction.
type ImportSpec struct {
	Mode           string `yaml:"mode,omitempty"` // strict | permissive
	Plane          string `yaml:"plane,omitempty"`
	ExpectAdded    *int   `yaml:"expect_added,omitempty"`
	ExpectRejected *int   `yaml:"expect_rejected,omitempty"`
}

// QueryStep is one path query with its expected outcome.
type QueryStep struct {
	// Term evaluates a path term; From/To/Rels run a reachability search.
	Term string   `yaml:"term,omitempty"`
	From string   `yaml:"from,omitempty"`
	To   string   `yaml:"to,omitempty"`
	Rels []string `yaml:"rels,omitempty"`

	ExpectFound bool `yaml:"expect_found"`
	// ExpectCount, when set, is the exact number of term bindings.
	ExpectCount *int `yaml:"expect_count,omitempty"`
}

// CertStep emits one certificate and verifies it.
type CertStep struct {
	Kind string `yaml:"kind"`

	From string   `yaml:"from,omitempty"`
	To   string   `yaml:"to,omitempty"`
	Rels []string `yaml:"rels,omitempty"`

	Relation string `yaml:"relation,omitempty"`
	Field    string `yaml:"field,omitempty"`
	Value    string `yaml:"value,omitempty"`

	Schema string `yaml:"schema,omitempty"`
	Term   string `yaml:"term,omitempty"`
	LHS    string `yaml:"lhs,omitempty"`
	RHS    string `yaml:"rhs,omitempty"`

	SourceRelation string            `yaml:"source_relation,omitempty"`
	TargetRelation string            `yaml:"target_relation,omitempty"`
	FieldMap       map[string]string `yaml:"field_map,omitempty"`

	// ExpectEmitError asserts emission fails with this substring.
	ExpectEmitError string `yaml:"expect_emit_error,omitempty"`
	// TamperDigest corrupts the anchor before verification; the verify
	// outcome must then be false.
	TamperDigest   bool `yaml:"tamper_digest,omitempty"`
	ExpectVerified bool `yaml:"expect_verified"`
}

// LoadScenario reads one scenario YAML file. Unknown fields are rejected
// so a typo in an expectation key fails loudly instead of silently
// asserting nothing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if s.Module == "" {
		return nil, fmt.Errorf("scenario %s: module is required", path)
	}
	return &s, nil
}
