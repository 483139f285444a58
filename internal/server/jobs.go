package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/metrics"
	"github.com/mafu-labs/growthsim/internal/registry"
	"github.com/mafu-labs/growthsim/internal/report"
	"github.com/mafu-labs/growthsim/internal/sim"
)

// JobStatus is the lifecycle state of a simulation job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SimulationRequest describes one simulation job.
type SimulationRequest struct {
	RootName      string                        `json:"rootName"`
	Levels        int                           `json:"levels" validate:"gte=0"`
	Step          int                           `json:"step" validate:"gt=0,lte=100"`
	Variables     []registry.ProductionVariable `json:"variables,omitempty"`
	FailurePolicy string                        `json:"failurePolicy,omitempty" validate:"omitempty,oneof=abort zero zero-return"`
	// IncludeTree embeds the full tree in the completed status.
	IncludeTree bool `json:"includeTree,omitempty"`
}

// SimulationState represents the state of a simulation job.
// Fields are guarded by the server's simulations mutex.
type SimulationState struct {
	ID          string
	Status      JobStatus
	Request     SimulationRequest
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Result      *report.Document
	Err         string

	cancel context.CancelFunc
}

// SimulationStatus is the externally visible view of a job.
type SimulationStatus struct {
	ID            string           `json:"simulation_id"`
	Status        JobStatus        `json:"status"`
	ExpectedNodes int              `json:"expected_nodes"`
	StartTime     string           `json:"start_time"`
	LastUpdate    string           `json:"last_update"`
	EndTime       string           `json:"end_time,omitempty"`
	Result        *report.Document `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// startSimulation validates req, registers a job and runs it in the
// background. Invalid requests are rejected before any job exists.
func (s *Server) startSimulation(req SimulationRequest) (*SimulationState, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	if limit := s.cfg.Simulation.MaxLevels; limit > 0 && req.Levels > limit {
		return nil, apperrors.Errorf(apperrors.KindInvalid, "levels %d exceeds the limit of %d", req.Levels, limit).
			WithComponent("server")
	}
	policy, err := sim.ParsePolicy(req.FailurePolicy)
	if err != nil {
		return nil, err
	}
	if req.FailurePolicy == "" {
		policy = s.cfg.FailurePolicy()
	}
	reg, err := s.registryFor(req.Variables)
	if err != nil {
		return nil, err
	}

	builder := sim.NewBuilder(
		sim.NewStepper(s.solver, reg, policy, s.zlog),
		sim.Options{
			RootProductivity: sim.DefaultSeed,
			RootSavings:      sim.DefaultSeed,
			MaxNodes:         s.cfg.Simulation.MaxNodes,
			Logger:           s.zlog,
		},
	)
	if err := builder.Validate(req.Levels, req.Step); err != nil {
		return nil, err
	}

	// Create a context bounded by the simulation timeout
	var ctx context.Context
	var cancel context.CancelFunc
	if s.cfg.Simulation.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.Simulation.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	now := time.Now()
	state := &SimulationState{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Request:     req,
		StartTime:   now,
		LastUpdated: now,
		cancel:      cancel,
	}

	s.simulationsMu.Lock()
	s.reapLocked(now)
	s.simulations[state.ID] = state
	s.simulationsMu.Unlock()

	s.logger.Info("Simulation started", map[string]interface{}{
		"simulation_id": state.ID,
		"levels":        req.Levels,
		"step":          req.Step,
		"policy":        policy.String(),
	})

	go s.runSimulation(ctx, state, builder)

	return state, nil
}

// runSimulation builds the tree of one job and records its outcome.
func (s *Server) runSimulation(ctx context.Context, state *SimulationState, builder *sim.Builder) {
	defer state.cancel()

	s.simulationsMu.Lock()
	if state.Status == StatusCancelled {
		s.simulationsMu.Unlock()
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.simulationsMu.Unlock()

	metrics.ActiveSimulations.Inc()
	defer metrics.ActiveSimulations.Dec()

	tree, err := builder.BuildTree(ctx, state.Request.RootName, state.Request.Levels, state.Request.Step)
	var doc *report.Document
	if err == nil {
		doc, err = report.NewDocument(tree, state.Request.IncludeTree)
	}

	s.simulationsMu.Lock()
	defer s.simulationsMu.Unlock()

	now := time.Now()
	state.LastUpdated = now
	if state.Status == StatusCancelled {
		return
	}
	state.EndTime = &now

	if err != nil {
		s.logger.Error("Simulation failed", map[string]interface{}{
			"simulation_id": state.ID,
			"error":         err.Error(),
		})
		state.Status = StatusFailed
		state.Err = err.Error()
		return
	}

	state.Status = StatusCompleted
	state.Result = doc
	s.logger.Info("Simulation completed", map[string]interface{}{
		"simulation_id": state.ID,
		"nodes":         doc.Nodes,
		"degraded":      doc.Degraded,
		"elapsed":       now.Sub(state.StartTime).String(),
	})
}

func (s *Server) simulationStatus(id string) (*SimulationStatus, error) {
	s.simulationsMu.RLock()
	defer s.simulationsMu.RUnlock()

	state, exists := s.simulations[id]
	if !exists {
		return nil, apperrors.Errorf(apperrors.KindNotFound, "simulation %q not found", id)
	}

	status := &SimulationStatus{
		ID:            state.ID,
		Status:        state.Status,
		ExpectedNodes: sim.NodeCount(state.Request.Levels, state.Request.Step),
		StartTime:     state.StartTime.Format(time.RFC3339),
		LastUpdate:    state.LastUpdated.Format(time.RFC3339),
		Result:        state.Result,
		Error:         state.Err,
	}
	if state.EndTime != nil {
		status.EndTime = state.EndTime.Format(time.RFC3339)
	}
	return status, nil
}

// cancelSimulation cancels a pending or running job.
func (s *Server) cancelSimulation(id string) error {
	s.simulationsMu.Lock()
	defer s.simulationsMu.Unlock()

	state, exists := s.simulations[id]
	if !exists {
		return apperrors.Errorf(apperrors.KindNotFound, "simulation %q not found", id)
	}
	if state.Status.terminal() {
		return apperrors.Errorf(apperrors.KindConflict, "cannot cancel simulation with status: %s", state.Status)
	}

	state.cancel()
	now := time.Now()
	state.Status = StatusCancelled
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Simulation cancelled", map[string]interface{}{
		"simulation_id": id,
	})
	return nil
}

// reapLocked drops finished jobs older than the retention period.
// The caller holds simulationsMu.
func (s *Server) reapLocked(now time.Time) {
	retention := s.cfg.Jobs.Retention
	if retention <= 0 {
		return
	}
	for id, state := range s.simulations {
		if state.Status.terminal() && state.EndTime != nil && now.Sub(*state.EndTime) > retention {
			delete(s.simulations, id)
		}
	}
}
