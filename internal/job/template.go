package job

import (
	"fmt"
	"strconv"
	"strings"
)

// TemplateError reports a shell-template placeholder that could not be
// resolved against the job.
type TemplateError struct {
	Placeholder string
	Template    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("unresolved placeholder {%s} in shell template %q", e.Placeholder, e.Template)
}

// renderShell substitutes {placeholder} slots in the rule's shell template.
// Supported placeholders: {input}, {output} (space-joined lists), {input[i]},
// {output[i]}, {params.NAME}, {wildcards.NAME} and {threads}. Literal braces
// are written as {{ and }}.
func renderShell(template string, j *Job) (string, error) {
	var sb strings.Builder
	rest := template
	for len(rest) > 0 {
		switch {
		case strings.HasPrefix(rest, "{{"):
			sb.WriteByte('{')
			rest = rest[2:]
		case strings.HasPrefix(rest, "}}"):
			sb.WriteByte('}')
			rest = rest[2:]
		case rest[0] == '{':
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return "", &TemplateError{Placeholder: rest[1:], Template: template}
			}
			name := rest[1:end]
			value, err := resolvePlaceholder(name, j)
			if err != nil {
				return "", &TemplateError{Placeholder: name, Template: template}
			}
			sb.WriteString(value)
			rest = rest[end+1:]
		default:
			next := strings.IndexAny(rest, "{}")
			if next < 0 {
				sb.WriteString(rest)
				rest = ""
				break
			}
			sb.WriteString(rest[:next])
			rest = rest[next:]
			if rest[0] == '}' {
				// A bare '}' with no matching escape or placeholder.
				sb.WriteByte('}')
				rest = rest[1:]
			}
		}
	}
	return sb.String(), nil
}

func resolvePlaceholder(name string, j *Job) (string, error) {
	switch {
	case name == "input":
		return joinSpace(j.Inputs), nil
	case name == "output":
		return joinSpace(j.Outputs), nil
	case name == "threads":
		return strconv.Itoa(j.Threads), nil
	case strings.HasPrefix(name, "input["):
		return indexInto(j.Inputs, name)
	case strings.HasPrefix(name, "output["):
		return indexInto(j.Outputs, name)
	case strings.HasPrefix(name, "params."):
		key := name[len("params."):]
		if v, ok := j.Params[key]; ok {
			return v, nil
		}
	case strings.HasPrefix(name, "wildcards."):
		key := name[len("wildcards."):]
		if v, ok := j.Binding[key]; ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown placeholder %q", name)
}

func indexInto(paths []string, name string) (string, error) {
	open := strings.IndexByte(name, '[')
	if !strings.HasSuffix(name, "]") {
		return "", fmt.Errorf("malformed index in %q", name)
	}
	idx, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil || idx < 0 || idx >= len(paths) {
		return "", fmt.Errorf("index out of range in %q", name)
	}
	return paths[idx], nil
}
