package ports

import "kiln/internal/domain"

// PlanStore persists shared plan documents as markdown files with a
// YAML frontmatter header.
type PlanStore interface {
	// Create writes a fresh draft document with a skeleton body.
	Create(title, session string) (*domain.Plan, error)
	// List returns plan metadata for every document, newest first.
	List() ([]domain.Plan, error)
	// Find locates one plan by id prefix or case-insensitive title
	// substring. Returns domain.ErrPlanNotFound when nothing matches
	// and an error naming the candidates when the query is ambiguous.
	Find(query string) (*domain.Plan, error)
	// Save rewrites a plan's frontmatter, leaving its body untouched.
	Save(plan *domain.Plan) error
	// Content returns the full document text.
	Content(plan *domain.Plan) (string, error)
}
