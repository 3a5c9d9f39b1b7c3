package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	httpSwagger "github.com/swaggo/http-swagger"

	electionmachine "ballotbox/contexts/election-core/election-machine"
	electionerrors "ballotbox/contexts/election-core/election-machine/domain/errors"
	electionhttp "ballotbox/contexts/election-core/election-machine/transport/http"
	_ "ballotbox/internal/platform/httpserver/docs"
)

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	election electionmachine.Module
}

func New(election electionmachine.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		election: election,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/elections", s.handleCreateElection)
	s.mux.HandleFunc("GET /v1/elections", s.handleListElections)
	s.mux.HandleFunc("GET /v1/elections/{election_id}", s.handleGetElection)
	s.mux.HandleFunc("POST /v1/elections/{election_id}/pause", s.handlePause)
	s.mux.HandleFunc("POST /v1/elections/{election_id}/unpause", s.handleUnpause)
	s.mux.HandleFunc("POST /v1/elections/{election_id}/participants", s.handleRegisterParticipant)
	s.mux.HandleFunc("POST /v1/elections/{election_id}/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /v1/elections/{election_id}/votes/{voter_id}/verify", s.handleVerifyVote)
	s.mux.HandleFunc("POST /v1/elections/{election_id}/reveal", s.handleRevealResults)
	s.mux.HandleFunc("GET /v1/elections/{election_id}/results", s.handleResults)
	s.mux.HandleFunc("GET /v1/elections/{election_id}/stats", s.handleStats)
}

func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	callerID := resolveCallerID(r)
	if callerID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_caller", "X-Caller-Id header is required")
		return
	}
	var req electionhttp.CreateElectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.election.Handler.CreateElectionHandler(r.Context(), callerID, req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	resp, err := s.election.Handler.ListElectionsHandler(r.Context())
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	resp, err := s.election.Handler.GetElectionHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleSetPaused(w, r, true)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.handleSetPaused(w, r, false)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	callerID := resolveCallerID(r)
	if callerID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_caller", "X-Caller-Id header is required")
		return
	}
	resp, err := s.election.Handler.PauseHandler(r.Context(), r.PathValue("election_id"), callerID, paused)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	callerID := resolveCallerID(r)
	if callerID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_caller", "X-Caller-Id header is required")
		return
	}
	var req electionhttp.RegisterParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if err := s.election.Handler.RegisterParticipantHandler(r.Context(), r.PathValue("election_id"), callerID, req); err != nil {
		writeElectionDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	callerID := resolveCallerID(r)
	if callerID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_caller", "X-Caller-Id header is required")
		return
	}
	var req electionhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.election.Handler.CastVoteHandler(r.Context(), r.PathValue("election_id"), callerID, req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleVerifyVote(w http.ResponseWriter, r *http.Request) {
	resp, err := s.election.Handler.VerifyVoteHandler(
		r.Context(),
		r.PathValue("election_id"),
		r.PathValue("voter_id"),
		r.URL.Query().Get("commitment"),
	)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevealResults(w http.ResponseWriter, r *http.Request) {
	callerID := resolveCallerID(r)
	if callerID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_caller", "X-Caller-Id header is required")
		return
	}
	var req electionhttp.RevealResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.election.Handler.RevealResultsHandler(r.Context(), r.PathValue("election_id"), callerID, req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.election.Handler.ResultsHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.election.Handler.StatsHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeElectionDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, electionerrors.ErrElectionNotFound):
		writeElectionError(w, http.StatusNotFound, "election_not_found", err.Error())
	case errors.Is(err, electionerrors.ErrUnauthorized):
		writeElectionError(w, http.StatusForbidden, "unauthorized_caller", err.Error())
	case errors.Is(err, electionerrors.ErrInvalidWindow),
		errors.Is(err, electionerrors.ErrNoCandidates),
		errors.Is(err, electionerrors.ErrDuplicateCandidate),
		errors.Is(err, electionerrors.ErrInvalidIdentity),
		errors.Is(err, electionerrors.ErrEmptyCommitment),
		errors.Is(err, electionerrors.ErrMalformedCommitment),
		errors.Is(err, electionerrors.ErrLengthMismatch):
		writeElectionError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, electionerrors.ErrElectionPaused):
		writeElectionError(w, http.StatusConflict, "election_paused", err.Error())
	case errors.Is(err, electionerrors.ErrVotingNotOpen),
		errors.Is(err, electionerrors.ErrVotingClosed),
		errors.Is(err, electionerrors.ErrVotingInProgress):
		writeElectionError(w, http.StatusConflict, "outside_voting_window", err.Error())
	case errors.Is(err, electionerrors.ErrNotRegistered):
		writeElectionError(w, http.StatusForbidden, "not_registered", err.Error())
	case errors.Is(err, electionerrors.ErrAlreadyRegistered),
		errors.Is(err, electionerrors.ErrAlreadyVoted),
		errors.Is(err, electionerrors.ErrCommitmentReused),
		errors.Is(err, electionerrors.ErrAlreadyVerified),
		errors.Is(err, electionerrors.ErrAlreadyRevealed),
		errors.Is(err, electionerrors.ErrVoterCountExceedsTotal),
		errors.Is(err, electionerrors.ErrConflict):
		writeElectionError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, electionerrors.ErrHasNotVoted):
		writeElectionError(w, http.StatusNotFound, "vote_not_found", err.Error())
	case errors.Is(err, electionerrors.ErrInvalidCandidate):
		writeElectionError(w, http.StatusUnprocessableEntity, "invalid_candidate", err.Error())
	case errors.Is(err, electionerrors.ErrResultsNotReady):
		writeElectionError(w, http.StatusConflict, "results_not_ready", err.Error())
	default:
		writeElectionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeElectionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, electionhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveCallerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Caller-Id"))
}
