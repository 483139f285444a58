package server

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/mafu-labs/growthsim/internal/errors"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

type simulationRef struct {
	ID string `json:"simulation_id" validate:"required"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "simulation.start":
		result, err = s.rpcStartSimulation(request.Params)
	case "simulation.status":
		result, err = s.rpcSimulationStatus(request.Params)
	case "simulation.cancel":
		result, err = s.rpcCancelSimulation(request.Params)
	case "optimization.solve":
		result, err = s.rpcSolve(r.Context(), request.Params)
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := codeServerError
		if apperrors.KindOf(err) == apperrors.KindInvalid {
			code = codeInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// decodeParams decodes the first positional parameter into v.
func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return apperrors.New(apperrors.KindInvalid, "missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return apperrors.Wrap(err, "invalid parameter format, expected object").WithKind(apperrors.KindInvalid)
	}
	return nil
}

// rpcStartSimulation handles simulation.start.
// Expected parameters: [{"rootName": "R", "levels": 3, "step": 50}]
// Returns: {"simulation_id": "...", "status": "pending"}
func (s *Server) rpcStartSimulation(params []json.RawMessage) (interface{}, error) {
	var req SimulationRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	state, err := s.startSimulation(req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"simulation_id": state.ID,
		"status":        StatusPending,
	}, nil
}

// rpcSimulationStatus handles simulation.status.
// Expected parameters: [{"simulation_id": "..."}]
func (s *Server) rpcSimulationStatus(params []json.RawMessage) (interface{}, error) {
	var ref simulationRef
	if err := decodeParams(params, &ref); err != nil {
		return nil, err
	}
	if err := s.validateRequest(ref); err != nil {
		return nil, err
	}
	return s.simulationStatus(ref.ID)
}

// rpcCancelSimulation handles simulation.cancel.
// Expected parameters: [{"simulation_id": "..."}]
func (s *Server) rpcCancelSimulation(params []json.RawMessage) (interface{}, error) {
	var ref simulationRef
	if err := decodeParams(params, &ref); err != nil {
		return nil, err
	}
	if err := s.validateRequest(ref); err != nil {
		return nil, err
	}
	if err := s.cancelSimulation(ref.ID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"simulation_id": ref.ID,
		"status":        StatusCancelled,
	}, nil
}

// rpcSolve handles optimization.solve.
// Expected parameters: [{"budget": 13}]
func (s *Server) rpcSolve(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	var req OptimizeRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return s.optimize(ctx, req)
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
