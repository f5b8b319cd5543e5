// Package schema validates the JSON documents this subsystem exchanges
// with its collaborators against embedded CUE definitions.
package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed schema.cue
var schemaSource string

// Document names accepted by Validate.
const (
	DocJobs         = "jobs"
	DocSessions     = "sessions"
	DocSubagentRuns = "subagent-runs"
	DocRuntimeState = "runtime-state"
)

var definitions = map[string]string{
	DocJobs:         "#Jobs",
	DocSessions:     "#Sessions",
	DocSubagentRuns: "#SubagentRuns",
	DocRuntimeState: "#RuntimeState",
}

var (
	compileOnce sync.Once
	cueCtx      *cue.Context
	schemaVal   cue.Value
	compileErr  error
)

func compiled() (cue.Value, error) {
	compileOnce.Do(func() {
		cueCtx = cuecontext.New()
		schemaVal = cueCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := schemaVal.Err(); err != nil {
			compileErr = fmt.Errorf("compile schema: %w", err)
		}
	})
	return schemaVal, compileErr
}

// Names lists the validatable document names in stable order.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a JSON document against the named schema. A nil
// return means the document unifies with the definition.
func Validate(name string, data []byte) error {
	defPath, ok := definitions[name]
	if !ok {
		return fmt.Errorf("unknown document %q", name)
	}

	root, err := compiled()
	if err != nil {
		return err
	}
	def := root.LookupPath(cue.ParsePath(defPath))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup %s: %w", defPath, err)
	}

	expr, err := cuejson.Extract(name+".json", data)
	if err != nil {
		return fmt.Errorf("%s: parse: %w", name, err)
	}
	doc := cueCtx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%s: build: %w", name, err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: %s", name, cueerrors.Details(err, nil))
	}
	return nil
}
