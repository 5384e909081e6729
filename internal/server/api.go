package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/formatter"
	"github.com/desertthunder/curate/internal/metrics"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/repositories"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/desertthunder/curate/internal/tasks"
	"github.com/go-playground/validator/v10"
)

const (
	maxBodyBytes     = 1 << 20
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// RunStore reads persisted runs. [repositories.RunRepository] implements it.
type RunStore interface {
	Get(id string) (*models.Run, error)
	List(criteria map[string]any) ([]*models.Run, error)
}

// APIOptions are the collaborators of [API]. Engine is required; Runs, Metrics and Ready may be nil.
type APIOptions struct {
	Engine  tasks.Engine
	Runs    RunStore
	Metrics *metrics.Collector
	Ready   func(ctx context.Context) error // health probe, e.g. a media server session check
	Logger  *log.Logger
}

// API serves the synthesis endpoints:
//
//	POST /api/synthesize  run the pipeline for {seed, mode, count, name}
//	GET  /api/runs        recent runs, ?limit= and ?status=
//	GET  /api/runs/{id}   one run with its outcomes
//	GET  /healthz         readiness
//	GET  /metrics         Prometheus exposition
type API struct {
	opts     APIOptions
	validate *validator.Validate
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewAPI creates the API handler.
func NewAPI(opts APIOptions) *API {
	a := &API{
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   shared.WithLogger(opts.Logger, "component", "api"),
		mux:      http.NewServeMux(),
	}
	a.mux.HandleFunc("POST /api/synthesize", a.synthesize)
	a.mux.HandleFunc("GET /api/runs", a.listRuns)
	a.mux.HandleFunc("GET /api/runs/{id}", a.getRun)
	a.mux.HandleFunc("GET /healthz", a.health)
	a.mux.Handle("GET /metrics", opts.Metrics.Handler())
	return a
}

// Routes returns the HTTP routes this handler serves.
func (a *API) Routes() []string {
	return []string{"/api/", "/healthz", "/metrics"}
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

type synthesizeResponse struct {
	*tasks.SynthesisResult
	Outcomes []formatter.OutcomeReport `json:"outcomes"`
}

func (a *API) synthesize(w http.ResponseWriter, r *http.Request) {
	var req tasks.SynthesisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req.Seed = strings.TrimSpace(req.Seed)
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	result, err := a.opts.Engine.Run(r.Context(), req, nil)
	if err != nil {
		writeError(w, setupStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, synthesizeResponse{
		SynthesisResult: result,
		Outcomes:        formatter.NewReport(result.Run()).Outcomes,
	})
}

// setupStatus maps a failed run to a response code: bad input is the caller's fault, everything else is upstream.
func setupStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrSetup):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) listRuns(w http.ResponseWriter, r *http.Request) {
	if a.opts.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := a.opts.Runs.List(map[string]any{"limit": limit, "status": r.URL.Query().Get("status")})
	if err != nil {
		a.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	reports := make([]formatter.RunReport, 0, len(runs))
	for _, run := range runs {
		reports = append(reports, formatter.NewReport(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": reports})
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request) {
	if a.opts.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	run, err := a.opts.Runs.Get(r.PathValue("id"))
	if errors.Is(err, repositories.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		a.logger.Error("failed to get run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, formatter.NewReport(run))
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ready != nil {
		if err := a.opts.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return fmt.Sprintf("%v: %s", shared.ErrInvalidInput, strings.Join(msgs, "; "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
