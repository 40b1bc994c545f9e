// Package plans stores shared plan documents. A plan is a markdown
// file named after its id whose YAML frontmatter carries the metadata;
// the body belongs to the humans and agents editing it and is never
// touched by metadata updates.
package plans

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// skeletonBody seeds new plan documents so agents always find the same
// section structure.
const skeletonBody = "# %s\n\n## Goals\n\n- \n\n## Steps\n\n1. \n"

// Store reads and writes plan documents in one directory.
type Store struct {
	dir string
}

// Compile-time interface verification
var _ ports.PlanStore = (*Store)(nil)

// NewStore creates a plan store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Create writes a new draft plan document.
func (s *Store) Create(title, session string) (*domain.Plan, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("plan title cannot be empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plans directory: %w", err)
	}

	plan := domain.NewPlan(title, session, s.dir)
	body := fmt.Sprintf(skeletonBody, title)
	if err := s.write(&plan, body); err != nil {
		return nil, err
	}

	logging.Logger.Info("Plan created", "id", plan.ID, "title", title, "session", session)
	return &plan, nil
}

// List returns every plan's metadata, newest first.
func (s *Store) List() ([]domain.Plan, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plans directory: %w", err)
	}

	var result []domain.Plan
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		plan, _, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			logging.Logger.Warn("Skipping unreadable plan", "file", entry.Name(), "error", err)
			continue
		}
		result = append(result, *plan)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// Find locates one plan by id prefix or title substring.
func (s *Store) Find(query string) (*domain.Plan, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	var matches []domain.Plan
	for _, plan := range all {
		if strings.HasPrefix(plan.ID, query) {
			matches = append(matches, plan)
		}
	}
	if len(matches) == 0 {
		lowered := strings.ToLower(query)
		for _, plan := range all {
			if strings.Contains(strings.ToLower(plan.Title), lowered) {
				matches = append(matches, plan)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, query)
	case 1:
		return &matches[0], nil
	default:
		titles := make([]string, len(matches))
		for i, plan := range matches {
			titles[i] = fmt.Sprintf("%s (%s)", plan.Title, plan.ID[:8])
		}
		return nil, fmt.Errorf("plan query %q is ambiguous: %s", query, strings.Join(titles, ", "))
	}
}

// Save rewrites the plan's frontmatter around its existing body and
// bumps the updated timestamp.
func (s *Store) Save(plan *domain.Plan) error {
	_, body, err := s.read(plan.FilePath)
	if err != nil {
		return err
	}

	plan.UpdatedAt = time.Now().UTC()
	return s.write(plan, body)
}

// Content returns the full document text.
func (s *Store) Content(plan *domain.Plan) (string, error) {
	data, err := os.ReadFile(plan.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read plan %s: %w", plan.ID, err)
	}
	return string(data), nil
}

// read parses a plan file into metadata and body.
func (s *Store) read(path string) (*domain.Plan, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read plan file: %w", err)
	}

	content := string(data)
	rest, found := strings.CutPrefix(content, "---\n")
	if !found {
		return nil, "", fmt.Errorf("plan file %s has no frontmatter", filepath.Base(path))
	}
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return nil, "", fmt.Errorf("plan file %s has an unterminated frontmatter block", filepath.Base(path))
	}

	var plan domain.Plan
	if err := yaml.Unmarshal([]byte(rest[:end]), &plan); err != nil {
		return nil, "", fmt.Errorf("plan file %s has invalid frontmatter: %w", filepath.Base(path), err)
	}
	plan.FilePath = path

	return &plan, rest[end+len("\n---\n"):], nil
}

// write renders frontmatter plus body to the plan's file.
func (s *Store) write(plan *domain.Plan, body string) error {
	header, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan frontmatter: %w", err)
	}

	doc := "---\n" + string(header) + "---\n" + body
	if err := os.WriteFile(plan.FilePath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}
