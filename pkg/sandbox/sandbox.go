// Package sandbox runs model-authored Go snippets in an embedded
// interpreter. Execution is restricted to a whitelist of side-effect-free
// stdlib packages; anything that could touch the filesystem, the network
// or the process is rejected before evaluation.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/openvalet/go-valet/internal/log"
	"github.com/openvalet/go-valet/pkg/tools"
	"github.com/openvalet/go-valet/pkg/value"
)

const noOutput = "<no printed output>"

// DefaultTimeout bounds a single snippet evaluation.
const DefaultTimeout = 10 * time.Second

var allowedImports = map[string]bool{
	"bytes":           true,
	"encoding/base64": true,
	"encoding/hex":    true,
	"encoding/json":   true,
	"errors":          true,
	"fmt":             true,
	"math":            true,
	"math/big":        true,
	"math/rand":       true,
	"regexp":          true,
	"sort":            true,
	"strconv":         true,
	"strings":         true,
	"time":            true,
	"unicode":         true,
	"unicode/utf8":    true,
}

// Runner evaluates Go source text inside a fresh interpreter per call.
type Runner struct {
	timeout time.Duration
}

// NewRunner returns a Runner with the default evaluation timeout.
func NewRunner() *Runner {
	return &Runner{timeout: DefaultTimeout}
}

// Run evaluates src and returns whatever it printed. A failed evaluation
// returns the interpreter's error text as the output so the model can read
// and correct its own mistake.
func (r *Runner) Run(ctx context.Context, src string) string {
	if err := checkImports(src); err != nil {
		return err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out bytes.Buffer
	i := interp.New(interp.Options{Stdout: &out, Stderr: &out})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Sprintf("interpreter setup failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := i.Eval(src)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Sprintf("execution timed out after %s", r.timeout)
	case err := <-done:
		if err != nil {
			return err.Error()
		}
	}

	printed := strings.TrimRight(out.String(), "\n")
	if printed == "" {
		return noOutput
	}
	return printed
}

// checkImports parses the snippet and rejects any import outside the
// whitelist. Snippets without a package clause are parsed as expressions
// by yaegi and cannot import anything, so a parse failure here is passed
// through to evaluation rather than rejected.
func checkImports(src string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", src, parser.ImportsOnly)
	if err != nil {
		return nil
	}
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		if !allowedImports[path] {
			return fmt.Errorf("import %q is not allowed in sandboxed code", path)
		}
	}
	return nil
}

// Provider exposes the run_code tool.
type Provider struct {
	runner *Runner
}

// New returns a Provider backed by a fresh Runner.
func New() *Provider {
	return &Provider{runner: NewRunner()}
}

// Tools returns the run_code capability.
func (p *Provider) Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: tools.Definition{
			Name: "run_code",
			Description: "Executes a self-contained Go snippet in a sandbox and returns " +
				"everything it prints. Only pure computation packages may be imported.",
			InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
				"code": {
					Type:        "string",
					Description: "The Go source to execute. Print the answer with fmt.",
				},
			}, "code"),
		},
		Handler: func(ctx context.Context, args value.Object, status *tools.Status, respond func(value.Value)) {
			raw, ok := args.Get("code")
			if !ok {
				respond(tools.Errorf("`code` must be present, with type `string`"))
				return
			}
			src, ok := raw.(value.Str)
			if !ok {
				respond(tools.Errorf("`code` must be present, with type `string`"))
				return
			}

			status.Set(fmt.Sprintf("Executing code:\n%s", src))

			// Evaluation can take a while; don't hold up the dispatcher.
			go func() {
				output := p.runner.Run(ctx, string(src))
				log.Debug("sandbox: snippet finished", "output_len", len(output))
				status.Update(func(old string) string {
					return fmt.Sprintf("%s\n\nExecution complete:\n%s", old, output)
				})
				respond(value.Str(output))
			}()
		},
	}}
}
