// Package templates loads agent templates: markdown files whose YAML
// frontmatter carries the launch configuration and whose body is the
// system prompt. Workspace templates shadow user templates, which
// shadow the embedded built-ins.
package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

//go:embed builtin/*.md
var builtinFS embed.FS

// frontmatter is the YAML header of a template file.
type frontmatter struct {
	AllowedTools    []string `yaml:"allowed_tools"`
	Description     string   `yaml:"description"`
	DisallowedTools []string `yaml:"disallowed_tools"`
	Mode            string   `yaml:"mode"`
	PermissionMode  string   `yaml:"permission_mode"`
}

// Resolver loads templates from a list of directories in precedence
// order, falling back to the built-ins.
type Resolver struct {
	dirs []string
}

// Compile-time interface verification
var _ ports.TemplateResolver = (*Resolver)(nil)

// NewResolver creates a resolver. Directories are searched in the
// given order; missing directories are simply skipped.
func NewResolver(dirs ...string) *Resolver {
	return &Resolver{dirs: dirs}
}

// Resolve loads the named template from the first directory that has
// it, or from the built-ins.
func (r *Resolver) Resolve(name string) (*domain.AgentTemplate, error) {
	for _, dir := range r.dirs {
		path := filepath.Join(dir, name+".md")
		data, err := os.ReadFile(path)
		if err == nil {
			logging.Logger.Debug("Template resolved from directory", "name", name, "dir", dir)
			return parseTemplate(name, data)
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read template %s: %w", path, err)
		}
	}

	data, err := builtinFS.ReadFile("builtin/" + name + ".md")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
	}
	logging.Logger.Debug("Template resolved from built-ins", "name", name)
	return parseTemplate(name, data)
}

// List returns every visible template, built-ins included, with
// shadowed duplicates removed. Sorted by name.
func (r *Resolver) List() ([]domain.AgentTemplate, error) {
	resolved := make(map[string]domain.AgentTemplate)

	addDir := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read template directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			name, ok := strings.CutSuffix(entry.Name(), ".md")
			if !ok || entry.IsDir() {
				continue
			}
			if _, exists := resolved[name]; exists {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
			}
			tmpl, err := parseTemplate(name, data)
			if err != nil {
				logging.Logger.Warn("Skipping malformed template", "name", name, "dir", dir, "error", err)
				continue
			}
			resolved[name] = *tmpl
		}
		return nil
	}

	for _, dir := range r.dirs {
		if err := addDir(dir); err != nil {
			return nil, err
		}
	}

	builtins, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in templates: %w", err)
	}
	for _, entry := range builtins {
		name, ok := strings.CutSuffix(entry.Name(), ".md")
		if !ok {
			continue
		}
		if _, exists := resolved[name]; exists {
			continue
		}
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, err
		}
		tmpl, err := parseTemplate(name, data)
		if err != nil {
			return nil, err
		}
		resolved[name] = *tmpl
	}

	templates := make([]domain.AgentTemplate, 0, len(resolved))
	for _, tmpl := range resolved {
		templates = append(templates, tmpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// parseTemplate splits the frontmatter from the body. Files without a
// frontmatter block are treated as a bare system prompt.
func parseTemplate(name string, data []byte) (*domain.AgentTemplate, error) {
	content := string(data)
	var fm frontmatter
	body := content

	if strings.HasPrefix(content, "---\n") {
		rest := content[len("---\n"):]
		end := strings.Index(rest, "\n---\n")
		length := len("\n---\n")
		if end == -1 {
			if !strings.HasSuffix(rest, "\n---") {
				return nil, fmt.Errorf("template %s has an unterminated frontmatter block", name)
			}
			end = len(rest) - len("\n---")
			length = len("\n---")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
			return nil, fmt.Errorf("template %s has invalid frontmatter: %w", name, err)
		}
		body = rest[end+length:]
	}

	mode := domain.AgentMode(fm.Mode)
	switch mode {
	case "":
		mode = domain.ModeHeadless
	case domain.ModeHeadless, domain.ModeInteractive, domain.ModeShell:
	default:
		return nil, fmt.Errorf("template %s has unknown mode %q", name, fm.Mode)
	}

	return &domain.AgentTemplate{
		AllowedTools:    fm.AllowedTools,
		Description:     fm.Description,
		DisallowedTools: fm.DisallowedTools,
		Mode:            mode,
		Name:            name,
		PermissionMode:  fm.PermissionMode,
		SystemPrompt:    strings.TrimSpace(body),
	}, nil
}
