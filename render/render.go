// Package render materializes config files from templates by literal
// token replacement.
//
// This is deliberately not a templating language: every occurrence of a
// declared token is replaced by its resolved value, undeclared tokens are
// left verbatim, and a missing secret substitutes a documented
// placeholder so the rendered config is usable by a human instead of
// failing the run. Secret values never reach a log or a result message.
package render

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/citydash/envready/secrets"
	"github.com/citydash/envready/step"
)

// Policy controls what happens when the destination already exists.
type Policy string

const (
	// PolicyIfAbsent skips rendering when the destination exists. This is
	// the default: it protects hand-edited configs from being clobbered.
	PolicyIfAbsent Policy = "if-absent"
	// PolicyNever refuses to touch an existing destination and surfaces a
	// warning, for files the operator must delete explicitly.
	PolicyNever Policy = "never"
	// PolicyAlways overwrites the destination on every run.
	PolicyAlways Policy = "always"
)

// TokenSpec declares where one placeholder token's value comes from.
// Exactly one of Value or Secret should be set.
type TokenSpec struct {
	// Value is a literal replacement (resolved tool paths, fixed strings).
	Value string `yaml:"value"`
	// Secret names a key resolved through the secret source.
	Secret string `yaml:"secret"`
	// Placeholder is substituted when the secret has no real value.
	Placeholder string `yaml:"placeholder"`
}

// TemplateSpec declares one config file to render.
type TemplateSpec struct {
	// Name is the step-facing identifier.
	Name string
	// Source is the template file path.
	Source string
	// Dest is the rendered destination path.
	Dest string
	// Policy is the overwrite policy. Empty means PolicyIfAbsent.
	Policy Policy
	// Tokens maps placeholder tokens in the template body to value specs.
	Tokens map[string]TokenSpec
}

// Renderer renders TemplateSpecs using a secret source.
type Renderer struct {
	secrets *secrets.Source
	logger  *slog.Logger
}

// New creates a Renderer.
func New(src *secrets.Source, logger *slog.Logger) *Renderer {
	return &Renderer{secrets: src, logger: logger}
}

// Render materializes the template, returning a tagged step result.
func (r *Renderer) Render(spec TemplateSpec) step.Result {
	policy := spec.Policy
	if policy == "" {
		policy = PolicyIfAbsent
	}

	if _, err := os.Stat(spec.Dest); err == nil {
		switch policy {
		case PolicyIfAbsent:
			// Skip without reading the template at all.
			r.logger.Info("destination exists, leaving as-is", "dest", spec.Dest)
			return step.Skip("%s already exists, not overwritten", spec.Dest)
		case PolicyNever:
			return step.Warn(
				fmt.Sprintf("rm %s && envready", spec.Dest),
				"%s exists and policy forbids overwriting it", spec.Dest)
		}
	}

	body, err := os.ReadFile(spec.Source)
	if err != nil {
		return step.Fail(
			"", "template %s is missing or unreadable: %v", spec.Source, err)
	}

	rendered, missing := r.substitute(string(body), spec.Tokens)

	if err := writeAtomic(spec.Dest, []byte(rendered), fileMode(spec.Tokens)); err != nil {
		return step.Fail(
			"", "failed to write %s: %v", spec.Dest, err)
	}

	if len(missing) > 0 {
		// Names only; the values (even placeholders) stay out of the report.
		return step.Warn(
			fmt.Sprintf("set %s and re-run envready", strings.Join(missing, ", ")),
			"rendered %s with placeholder value(s) for: %s", spec.Dest, strings.Join(missing, ", "))
	}
	return step.Ok("rendered %s", spec.Dest)
}

// substitute replaces every occurrence of each declared token and returns
// the secret keys that fell back to their placeholder.
func (r *Renderer) substitute(body string, tokens map[string]TokenSpec) (string, []string) {
	var missing []string

	// Deterministic order keeps runs and tests reproducible.
	names := make([]string, 0, len(tokens))
	for token := range tokens {
		names = append(names, token)
	}
	sort.Strings(names)

	for _, token := range names {
		spec := tokens[token]
		value := spec.Value
		if spec.Secret != "" {
			resolved, ok := r.secrets.Resolve(spec.Secret, spec.Placeholder)
			value = resolved
			if !ok {
				missing = append(missing, spec.Secret)
			}
		}
		body = strings.ReplaceAll(body, token, value)
	}
	return body, missing
}

// fileMode tightens permissions for configs that may carry secrets.
func fileMode(tokens map[string]TokenSpec) os.FileMode {
	for _, spec := range tokens {
		if spec.Secret != "" {
			return 0600
		}
	}
	return 0644
}

// writeAtomic writes via a temp file plus rename so a crash mid-write
// never leaves a half-written config.
func writeAtomic(dest string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}
