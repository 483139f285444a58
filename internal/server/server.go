package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mafu-labs/growthsim/internal/config"
	apperrors "github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/logging"
	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/registry"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server implements the HTTP and JSON-RPC API of the simulator.
// It runs simulation jobs in the background and answers single solves
// synchronously.
type Server struct {
	cfg      *config.Config
	logger   Logger
	zlog     *zap.Logger
	solver   optimization.Solver
	registry *registry.Registry
	validate *validator.Validate

	// Simulation state management
	simulations   map[string]*SimulationState
	simulationsMu sync.RWMutex // Protects the simulations map
}

// NewServer creates a new server instance. solver serves every solve of
// every job; it must be safe for concurrent use.
func NewServer(cfg *config.Config, logger Logger, solver optimization.Solver) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger,
		zlog:        logging.NewZapLogger(logger.WithFields(map[string]interface{}{"component": "sim"})),
		solver:      solver,
		registry:    registry.Default(),
		validate:    validator.New(),
		simulations: make(map[string]*SimulationState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/simulations", s.handleStartSimulation)
		r.Get("/simulations/{id}", s.handleSimulationStatus)
		r.Delete("/simulations/{id}", s.handleCancelSimulation)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/variables", s.handleVariables)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// OptimizeRequest asks for one solve. Variables default to the cake
// registry.
type OptimizeRequest struct {
	Budget    float64                       `json:"budget" validate:"gte=0"`
	Variables []registry.ProductionVariable `json:"variables,omitempty"`
}

// registryFor returns the registry a request solves over.
func (s *Server) registryFor(vars []registry.ProductionVariable) (*registry.Registry, error) {
	if len(vars) == 0 {
		return s.registry, nil
	}
	return registry.New(vars...)
}

func (s *Server) validateRequest(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return apperrors.Wrap(err, "invalid request").WithKind(apperrors.KindInvalid).WithComponent("server")
	}
	return nil
}

func (s *Server) optimize(ctx context.Context, req OptimizeRequest) (*optimization.Result, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	reg, err := s.registryFor(req.Variables)
	if err != nil {
		return nil, err
	}
	return s.solver.Solve(ctx, reg, req.Budget)
}

// handleOptimize handles POST /api/v1/optimize, a synchronous single solve.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, apperrors.Wrap(err, "invalid request body").WithKind(apperrors.KindInvalid))
		return
	}

	res, err := s.optimize(r.Context(), req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// handleVariables handles GET /api/v1/variables.
func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"variables": s.registry.Variables(),
	})
}

// handleStartSimulation handles POST /api/v1/simulations.
func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, apperrors.Wrap(err, "invalid request body").WithKind(apperrors.KindInvalid))
		return
	}

	state, err := s.startSimulation(req)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"simulation_id": state.ID,
		"status":        StatusPending,
	})
}

// handleSimulationStatus handles GET /api/v1/simulations/{id}.
func (s *Server) handleSimulationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.simulationStatus(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// handleCancelSimulation handles DELETE /api/v1/simulations/{id}.
func (s *Server) handleCancelSimulation(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelSimulation(chi.URLParam(r, "id")); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// respondError maps err to a status code by its kind.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(apperrors.KindOf(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", map[string]interface{}{"error": err.Error()})
	}
	s.respondJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"kind":  apperrors.KindOf(err).String(),
	})
}

// Close cancels every running simulation.
func (s *Server) Close() error {
	s.simulationsMu.Lock()
	defer s.simulationsMu.Unlock()

	for _, job := range s.simulations {
		if job.cancel != nil {
			job.cancel()
		}
	}
	return nil
}
