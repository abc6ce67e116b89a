package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/josephjohncox/axiograph-sub003/internal/ir"
)

// TraceBytes serializes a scenario trace canonically. Identical runs
// produce identical bytes; map iteration order never leaks into the file.
func TraceBytes(result *Result) ([]byte, error) {
	return ir.MarshalCanonical(result.Trace)
}

// RunWithGolden runs the scenario, enforces its expectations, and compares
// the canonical trace against testdata/golden/<name>.golden. Regenerate
// goldens with `go test -update`.
func RunWithGolden(t *testing.T, s *Scenario) {
	t.Helper()

	result, err := RunAndCheck(s)
	if err != nil {
		t.Fatal(err)
	}
	trace, err := TraceBytes(result)
	if err != nil {
		t.Fatalf("serialize trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, trace)
}
