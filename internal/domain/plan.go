package domain

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// PlanStatus is the lifecycle of a shared plan document
type PlanStatus string

const (
	PlanDraft      PlanStatus = "draft"
	PlanActive     PlanStatus = "active"
	PlanCompleted  PlanStatus = "completed"
	PlanSuperseded PlanStatus = "superseded"
)

// Symbol returns the one-character glyph for list output
func (s PlanStatus) Symbol() string {
	switch s {
	case PlanDraft:
		return "◐"
	case PlanActive:
		return "●"
	case PlanCompleted:
		return "✓"
	case PlanSuperseded:
		return "▪"
	default:
		return "?"
	}
}

// Plan is a markdown document shared between agents, stored under the
// managed plans directory as <id>.md with YAML frontmatter
type Plan struct {
	ID        string     `yaml:"id"`
	Title     string     `yaml:"title"`
	Session   string     `yaml:"session,omitempty"`
	Status    PlanStatus `yaml:"status"`
	CreatedAt time.Time  `yaml:"created_at"`
	UpdatedAt time.Time  `yaml:"updated_at"`

	// FilePath is where the document lives on disk; not part of the
	// frontmatter since the file knows its own location
	FilePath string `yaml:"-"`
}

// NewPlan builds a draft plan whose file lives in plansDir
func NewPlan(title, session, plansDir string) Plan {
	id := uuid.New().String()
	now := time.Now().UTC()
	return Plan{
		ID:        id,
		Title:     title,
		Session:   session,
		Status:    PlanDraft,
		CreatedAt: now,
		UpdatedAt: now,
		FilePath:  filepath.Join(plansDir, id+".md"),
	}
}
