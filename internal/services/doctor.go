package services

import (
	"context"
	"errors"

	"kiln/internal/domain"
	"kiln/internal/logging"
	"kiln/internal/ports"
)

// DoctorCheck is one environment probe result.
type DoctorCheck struct {
	Detail string
	Name   string
	OK     bool
}

// DoctorReport is everything `kiln doctor` gathers in one pass.
type DoctorReport struct {
	Checks      []DoctorCheck
	Corrections []string
	Orphans     []string
	Recent      []ports.Event
}

// Healthy reports whether every environment check passed.
func (r *DoctorReport) Healthy() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Doctor diagnoses the workspace: binary availability, state drift,
// and leftover debris.
type Doctor struct {
	git        ports.GitClient
	history    ports.EventRecorder
	reconciler *Reconciler
	runner     ports.AgentRunner
	state      ports.StateStore
	tmux       ports.TmuxClient
}

// NewDoctor wires the diagnosis service.
func NewDoctor(
	state ports.StateStore,
	git ports.GitClient,
	tmux ports.TmuxClient,
	runner ports.AgentRunner,
	reconciler *Reconciler,
	history ports.EventRecorder,
) *Doctor {
	return &Doctor{
		git:        git,
		history:    history,
		reconciler: reconciler,
		runner:     runner,
		state:      state,
		tmux:       tmux,
	}
}

// Run performs the checks, reconciles recorded state against what is
// actually on disk and in tmux, and persists any corrections.
func (d *Doctor) Run(ctx context.Context) (*DoctorReport, error) {
	report := &DoctorReport{
		Checks: []DoctorCheck{
			d.check("git", d.git.Available()),
			d.check("tmux", d.tmux.Available()),
			d.check("agent CLI", d.runner.Available()),
		},
	}

	st, err := d.state.Load()
	if err != nil {
		if errors.Is(err, domain.ErrNotInitialized) {
			report.Checks = append(report.Checks, DoctorCheck{
				Detail: "not initialized (run `kiln init`)",
				Name:   "workspace",
				OK:     false,
			})
			return report, nil
		}
		return nil, err
	}
	report.Checks = append(report.Checks, DoctorCheck{
		Detail: st.Workspace.Root,
		Name:   "workspace",
		OK:     true,
	})

	report.Corrections = d.reconciler.FullSweep(ctx, st)
	if len(report.Corrections) > 0 {
		if err := d.state.Save(st); err != nil {
			return nil, err
		}
	}

	var referenced []string
	for i := range st.Sessions {
		referenced = append(referenced, st.Sessions[i].WorktreePaths()...)
	}
	orphans, err := d.git.ListOrphanWorktrees(st.Workspace.WorktreeBaseDir, st.Workspace.WorktreePrefix, referenced)
	if err != nil {
		logging.Logger.Warn("Could not scan for orphan worktrees", "error", err)
	}
	report.Orphans = orphans

	if d.history != nil {
		recent, err := d.history.Recent(ctx, 10)
		if err != nil {
			logging.Logger.Warn("Could not read event history", "error", err)
		} else {
			report.Recent = recent
		}
	}

	return report, nil
}

func (d *Doctor) check(name string, err error) DoctorCheck {
	if err != nil {
		return DoctorCheck{Detail: err.Error(), Name: name, OK: false}
	}
	return DoctorCheck{Name: name, OK: true}
}
