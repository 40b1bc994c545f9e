package ports

import "kiln/internal/domain"

// TemplateResolver loads agent templates by name. Resolution order is
// workspace templates, then user templates, then built-ins.
type TemplateResolver interface {
	Resolve(name string) (*domain.AgentTemplate, error)
	List() ([]domain.AgentTemplate, error)
}
