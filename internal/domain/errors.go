package domain

import "errors"

var (
	ErrNotInitialized       = errors.New("workspace not initialized (run 'kiln init' first)")
	ErrSessionExists        = errors.New("session already exists")
	ErrSessionNotFound      = errors.New("session not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrMainSessionProtected = errors.New("the main session cannot be killed")
	ErrSessionActive        = errors.New("session is active (use --force to kill it anyway)")
	ErrTemplateNotFound     = errors.New("template not found")
	ErrPlanNotFound         = errors.New("plan not found")
)
