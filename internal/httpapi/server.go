package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/service"
	"github.com/FerociousFuture/Proyecto-NFC-List/internal/ledger/types"
)

type Dependencies struct {
	Logger  *slog.Logger
	Addr    string
	Engine  *service.Engine
	Reports *service.Reports

	// RateLimit is the sustained requests per second across all clients.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	engine     *service.Engine
	reports    *service.Reports
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		mux:     mux,
		engine:  d.Engine,
		reports: d.Reports,
	}

	mux.HandleFunc("POST /v1/observations", s.handleObservation)
	mux.HandleFunc("POST /v1/identities", s.handleEnroll)
	mux.HandleFunc("GET /v1/occupancy", s.handleOccupancy)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/summary", s.handleSummary)

	var limiter *rate.Limiter
	if d.RateLimit > 0 {
		burst := d.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(d.RateLimit), burst)
	}

	handler := loggingMiddleware(d.Logger, rateLimitMiddleware(limiter, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleObservation feeds one networked read into the same engine the
// local reader loop uses; the engine serializes them.
func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	proto := isProtobuf(r)

	var (
		req types.ObservationRequest
		err error
	)
	if proto {
		req, err = readObservationProto(r)
	} else {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}

	card, err := types.ParseCardID(req.CardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_card_id", err.Error())
		return
	}
	obs := types.Observation{CardID: card}
	if strings.TrimSpace(req.ObservedAt) != "" {
		at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(req.ObservedAt))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_observed_at", "observed_at must be RFC 3339")
			return
		}
		obs.ObservedAt = at
	}

	// The client going away must not abort a write already under way.
	out := s.engine.HandleObservation(context.WithoutCancel(r.Context()), obs)
	resp, status := observationResponse(out)

	if proto {
		writeProto(w, status, marshalObservationResponse(resp))
		return
	}
	writeJSON(w, status, resp)
}

func observationResponse(out types.Outcome) (types.ObservationResponse, int) {
	resp := types.ObservationResponse{
		OK:           out.Kind != types.OutcomeFailed,
		Outcome:      out.Kind,
		Granted:      out.Granted(),
		Transition:   out.Transition,
		ExternalCode: out.Identity.ExternalCode,
		DisplayName:  out.Identity.DisplayName,
		Dwell:        out.Dwell,
		ServerTime:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if out.SnapshotErr != nil {
		resp.Warnings = append(resp.Warnings, "snapshot_pending")
	}
	if out.DwellErr != nil {
		resp.Warnings = append(resp.Warnings, "dwell_not_recorded")
	}

	switch out.Kind {
	case types.OutcomeUnknown:
		return resp, http.StatusForbidden
	case types.OutcomeFailed:
		return resp, http.StatusServiceUnavailable
	}
	return resp, http.StatusOK
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req types.EnrollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	card, err := types.ParseCardID(req.CardID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_card_id", err.Error())
		return
	}

	id, err := s.engine.Enroll(r.Context(), types.Identity{
		CardID:       card,
		DisplayName:  req.DisplayName,
		ExternalCode: req.ExternalCode,
		TypeCode:     req.TypeCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyEnrolled):
			writeError(w, http.StatusConflict, "already_enrolled", err.Error())
		case errors.Is(err, service.ErrInvalidIdentity), errors.Is(err, service.ErrInvalidCardID):
			writeError(w, http.StatusBadRequest, "invalid_identity", err.Error())
		default:
			s.logger.Error("enroll failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, types.EnrollResponse{OK: true, Identity: id})
}

func (s *Server) handleOccupancy(w http.ResponseWriter, _ *http.Request) {
	occ := s.engine.Occupancy()
	if occ == nil {
		occ = []types.OccupantRecord{}
	}
	writeJSON(w, http.StatusOK, types.OccupancyResponse{Count: len(occ), Occupants: occ})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_code", "code query parameter is required")
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	evs, err := s.reports.History(r.Context(), code, limit)
	if err != nil {
		s.logger.Error("history failed", "external_code", code, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if evs == nil {
		evs = []types.Event{}
	}
	writeJSON(w, http.StatusOK, types.EventsResponse{ExternalCode: code, Events: evs})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	day, err := s.reports.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	sum, err := s.reports.Summary(r.Context(), day)
	if err != nil {
		s.logger.Error("summary failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}
