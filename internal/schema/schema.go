// Package schema holds the raw HCL block structures decoded from workflow
// files, before translation into the agnostic rule model.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Params represents the content of the 'params' block within a rule. Its
// attribute expressions stay unevaluated until job expansion.
type Params struct {
	Body hcl.Body `hcl:",remain"`
}

// Rule represents a `rule` block from a user's workflow file.
type Rule struct {
	Name string `hcl:"name,label"`
	// Output and Input are kept as expressions because both a single string
	// and a list of strings are accepted.
	Output   hcl.Expression `hcl:"output"`
	Input    hcl.Expression `hcl:"input,optional"`
	Params   *Params        `hcl:"params,block"`
	Shell    string         `hcl:"shell"`
	Threads  int            `hcl:"threads,optional"`
	Temp     bool           `hcl:"temp,optional"`
	Fallback bool           `hcl:"fallback,optional"`
	Message  string         `hcl:"message,optional"`
}

// Workflow represents the optional `workflow` block carrying file-level
// settings such as the declared default config file.
type Workflow struct {
	ConfigFile string `hcl:"config_file,optional"`
}

// File represents the top-level structure of one workflow file.
type File struct {
	Workflow *Workflow `hcl:"workflow,block"`
	Rules    []*Rule   `hcl:"rule,block"`
}
