// Package hcl loads workflow files: it parses the HCL surface, validates it,
// and translates it into the agnostic rule model the planner works with.
package hcl

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/flowmake/internal/ctxlog"
	"github.com/vk/flowmake/internal/fsutil"
	"github.com/vk/flowmake/internal/rule"
	"github.com/vk/flowmake/internal/schema"
)

// Workflow is the loaded, translated workflow definition.
type Workflow struct {
	// Registry holds every declared rule in declaration order.
	Registry *rule.Registry
	// ConfigFile is the default config file declared by a workflow block,
	// resolved relative to the declaring file. Empty when none was declared.
	ConfigFile string
}

// Loader parses workflow files into the agnostic model.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a workflow file loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load reads the workflow definition from path (a file or a directory
// searched recursively) and returns the translated model.
func (l *Loader) Load(ctx context.Context, path string) (*Workflow, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindRuleFiles(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Workflow files discovered.", "count", len(files))

	wf := &Workflow{Registry: rule.NewRegistry()}
	for _, file := range files {
		if err := l.loadFile(ctx, file, wf); err != nil {
			return nil, err
		}
	}
	logger.Debug("Workflow loaded.", "rules", wf.Registry.Len(), "config_file", wf.ConfigFile)
	return wf, nil
}

func (l *Loader) loadFile(ctx context.Context, path string, wf *Workflow) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing workflow file.", "path", path)

	hclFile, diags := l.parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("parsing %s: %w", path, diags)
	}

	var raw schema.File
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &raw); diags.HasErrors() {
		return fmt.Errorf("decoding %s: %w", path, diags)
	}

	if raw.Workflow != nil && raw.Workflow.ConfigFile != "" {
		if wf.ConfigFile != "" {
			return fmt.Errorf("%s: config_file already declared by another workflow block", path)
		}
		wf.ConfigFile = filepath.Join(filepath.Dir(path), raw.Workflow.ConfigFile)
	}

	for _, rawRule := range raw.Rules {
		translated, err := translateRule(rawRule, path)
		if err != nil {
			return err
		}
		if err := wf.Registry.Register(translated); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("Rule registered.",
			"rule", translated.Name,
			"outputs", len(translated.Outputs),
			"inputs", len(translated.Inputs),
		)
	}
	return nil
}

// pathList evaluates a static output/input expression, accepting either a
// single string or a list/tuple of strings.
func pathList(expr hcl.Expression) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty.IsPrimitiveType():
		return []string{val.AsString()}, nil
	case ty.IsTupleType() || ty.IsListType():
		var paths []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			paths = append(paths, elem.AsString())
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("expected a string or list of strings, got %s", ty.FriendlyName())
	}
}
