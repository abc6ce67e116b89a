package cert

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

func certificateSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		compiled := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := compiled.Err(); err != nil {
			schemaErr = fmt.Errorf("compile certificate schema: %w", err)
			return
		}
		schemaValue = compiled.LookupPath(cue.ParsePath("#Certificate"))
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Certificate: %w", err)
		}
	})
	return schemaValue, schemaErr
}

// ValidateShape unifies certificate bytes with the embedded #Certificate
// schema. This is structural validation only; it says nothing about
// whether the payload's claims hold against a module.
func ValidateShape(data []byte) error {
	schema, err := certificateSchema()
	if err != nil {
		return err
	}
	expr, err := cuejson.Extract("certificate.json", data)
	if err != nil {
		return fmt.Errorf("certificate is not valid JSON: %w", err)
	}
	val := schema.Context().BuildExpr(expr)
	if err := val.Err(); err != nil {
		return fmt.Errorf("build certificate value: %w", err)
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("certificate shape: %w", err)
	}
	return nil
}
