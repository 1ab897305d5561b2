// CLAUDE:SUMMARY HTTP JSON API — register/login, evaluate statements, browse stored evaluations, agents, health and metrics
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/pkg/kit"

	"github.com/hazyhaar/factlens/internal/auth"
	"github.com/hazyhaar/factlens/internal/db"
	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/internal/metrics"
	"github.com/hazyhaar/factlens/pkg/audit"
	"github.com/hazyhaar/factlens/pkg/trace"
)

// handleRe validates handle format: ASCII alphanumeric, underscore, hyphen only.
var handleRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	// maxBodySize bounds request bodies on write endpoints.
	maxBodySize = 64 * 1024
)

type API struct {
	db        *db.DB
	flows     *db.FlowsDB
	metricsDB *db.MetricsDB
	auth      *auth.Auth
	orch      *evaluation.Orchestrator
	metrics   *metrics.Metrics
	auditLog  audit.Logger
	auditLook auditReader
	traces    traceStats
	limiter   *RateLimiter
	logger    *slog.Logger
	version   string

	evaluate kit.Endpoint
}

// auditReader is implemented by audit loggers that can be queried.
type auditReader interface {
	Recent(ctx context.Context, q audit.Query) ([]audit.Entry, error)
}

type traceStats interface {
	Stats() trace.Stats
}

func New(database *db.DB, a *auth.Auth, orch *evaluation.Orchestrator, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{
		db:      database,
		auth:    a,
		orch:    orch,
		limiter: NewRateLimiter(10, time.Minute),
		logger:  logger,
		version: "dev",
	}
	api.buildEndpoints()
	return api
}

// SetFlowsDB enables the per-evaluation trace endpoint.
func (a *API) SetFlowsDB(f *db.FlowsDB) { a.flows = f }

// SetMetricsDB enables the SQLite request ledger.
func (a *API) SetMetricsDB(m *db.MetricsDB) { a.metricsDB = m }

// SetMetrics enables Prometheus collection and GET /metrics.
func (a *API) SetMetrics(m *metrics.Metrics) { a.metrics = m }

// SetAuditLogger wraps the evaluate endpoint with audit logging. Loggers
// that can be queried also back GET /api/audit.
func (a *API) SetAuditLogger(l audit.Logger) {
	a.auditLog = l
	a.auditLook, _ = l.(auditReader)
	a.buildEndpoints()
}

// SetTraceStore reports store-operation trace counters in GET /api/health.
func (a *API) SetTraceStore(t *trace.Store) { a.traces = t }

// SetRateLimiter replaces the limiter guarding POST /api/evaluate.
func (a *API) SetRateLimiter(rl *RateLimiter) { a.limiter = rl }

func (a *API) SetVersion(v string) { a.version = v }

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", a.handleRegister)
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.Handle("GET /api/me", a.auth.Middleware(true, http.HandlerFunc(a.handleMe)))

	mux.Handle("POST /api/evaluate", a.auth.Middleware(true,
		RateLimitMiddleware(a.limiter, a.handleEvaluate)))
	mux.HandleFunc("GET /api/evaluations", a.handleListEvaluations)
	mux.HandleFunc("GET /api/evaluations/{id}", a.handleGetEvaluation)
	mux.HandleFunc("GET /api/evaluations/{id}/trace", a.handleEvaluationTrace)
	mux.HandleFunc("GET /api/agents", a.handleAgents)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /api/audit", a.auth.Middleware(true, http.HandlerFunc(a.handleAudit)))

	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}
}

// Handler returns the full middleware stack around a mux with every route
// registered.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return SecurityHeaders(RequestID(a.instrument(mux)))
}

// --- Auth ---

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		Handle   string `json:"handle"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Handle == "" || req.Password == "" {
		jsonError(w, "handle and password are required", http.StatusBadRequest)
		return
	}
	if len(req.Handle) < 3 || len(req.Handle) > 30 {
		jsonError(w, "handle must be 3-30 characters", http.StatusBadRequest)
		return
	}
	if !handleRe.MatchString(req.Handle) {
		jsonError(w, "handle must contain only ASCII letters, digits, underscore or hyphen", http.StatusBadRequest)
		return
	}

	hash, err := a.auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := a.db.CreateUser(db.CreateUserInput{
		Handle:       req.Handle,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			jsonError(w, "handle or email already taken", http.StatusConflict)
			return
		}
		a.logger.Error("creating user", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Handle)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": token,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user, passwordHash, err := a.db.GetUserByHandle(req.Handle)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			a.logger.Error("looking up user", "error", err)
		}
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !a.auth.CheckPassword(passwordHash, req.Password) {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Handle)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := a.db.TouchLastSeen(user.ID); err != nil {
		a.logger.Warn("touching last seen", "user", user.ID, "error", err)
	}

	jsonResp(w, http.StatusOK, map[string]any{
		"user":  user,
		"token": token,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFrom(r.Context())
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	user, err := a.db.GetUserByID(claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("loading user", "user", claims.UserID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, user)
}

// --- Evaluations ---

// EvaluateRequest is the body of POST /api/evaluate.
type EvaluateRequest = evaluation.Request

// evaluateCall is the request passed to the evaluate endpoint.
type evaluateCall struct {
	EvaluateRequest
	userID string
}

// buildEndpoints wraps the evaluate endpoint with audit logging when a
// logger is set.
func (a *API) buildEndpoints() {
	var endpoint kit.Endpoint = func(ctx context.Context, request any) (any, error) {
		call := request.(evaluateCall)
		report, err := a.orch.EvaluateStatement(ctx, call.ToStatement(), call.Context, call.Agents)
		if err != nil {
			return nil, err
		}
		if err := a.db.SaveReport(ctx, call.userID, report); err != nil {
			return nil, &storeError{err: err}
		}
		if a.metrics != nil {
			a.metrics.ObserveVerdict(report.Synthesis.Verdict)
		}
		return report, nil
	}
	if a.auditLog != nil {
		endpoint = audit.Middleware(a.auditLog, "evaluate_statement")(endpoint)
	}
	a.evaluate = endpoint
}

type storeError struct{ err error }

func (e *storeError) Error() string { return "storing evaluation: " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFrom(r.Context())
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := audit.WithCaller(r.Context(), audit.Caller{
		Transport: audit.TransportHTTP,
		UserID:    claims.UserID,
		RequestID: RequestIDFrom(r.Context()),
	})
	resp, err := a.evaluate(ctx, evaluateCall{EvaluateRequest: req, userID: claims.UserID})
	if err != nil {
		a.writeEvaluateError(w, err)
		return
	}
	jsonResp(w, http.StatusCreated, resp)
}

func (a *API) writeEvaluateError(w http.ResponseWriter, err error) {
	var sf *evaluation.SynthesisFailure
	var se *storeError
	switch {
	case errors.As(err, &sf):
		a.logger.Warn("evaluation failed", "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &se):
		a.logger.Error("evaluation not stored", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "evaluation timed out", http.StatusGatewayTimeout)
	default:
		a.logger.Error("evaluation failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (a *API) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.ListFilter{
		Limit:  queryInt(q.Get("limit"), 20),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if v := q.Get("verdict"); v != "" {
		verdict, ok := evaluation.ParseVerdict(v)
		if !ok {
			jsonError(w, "unknown verdict", http.StatusBadRequest)
			return
		}
		f.Verdict = verdict
	}
	if q.Get("mine") == "true" || q.Get("mine") == "1" {
		claims := a.auth.ExtractClaims(r)
		if claims == nil {
			jsonError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		f.UserID = claims.UserID
	}

	list, err := a.db.ListReports(r.Context(), f)
	if err != nil {
		a.logger.Error("listing evaluations", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []db.ReportSummary{}
	}
	jsonResp(w, http.StatusOK, map[string]any{
		"evaluations": list,
		"limit":       f.Limit,
		"offset":      f.Offset,
	})
}

func (a *API) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	report, err := a.db.GetReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "evaluation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error("loading evaluation", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, report)
}

func (a *API) handleEvaluationTrace(w http.ResponseWriter, r *http.Request) {
	if a.flows == nil {
		jsonError(w, "flows database not configured", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	steps, err := a.flows.FlowSteps(r.Context(), id)
	if err != nil {
		a.logger.Error("loading trace", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if steps == nil {
		steps = []evaluation.TraceStep{}
	}
	jsonResp(w, http.StatusOK, map[string]any{
		"evaluation_id": id,
		"steps":         steps,
	})
}

// --- Agents & health ---

type agentInfo struct {
	Name           string   `json:"name"`
	Perspective    string   `json:"perspective,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	Evaluations    int      `json:"evaluations"`
	Failures       int      `json:"failures"`
	MeanConfidence float64  `json:"mean_confidence"`
}

func (a *API) handleAgents(w http.ResponseWriter, r *http.Request) {
	stats, err := a.db.AgentStats(r.Context())
	if err != nil {
		a.logger.Error("agent stats", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	byAgent := make(map[string]db.AgentStats, len(stats))
	for _, s := range stats {
		byAgent[s.Agent] = s
	}

	agents := make([]agentInfo, 0, len(a.orch.Agents()))
	for _, name := range a.orch.Agents() {
		info := agentInfo{Name: name}
		if ev, ok := a.orch.Evaluator(name); ok {
			if re, ok := ev.(interface{ Role() evaluation.Role }); ok {
				info.Perspective = re.Role().Perspective
				info.Tools = re.Role().Tools
			}
		}
		s := byAgent[name]
		info.Evaluations, info.Failures, info.MeanConfidence = s.Evaluations, s.Failures, s.MeanConfidence
		agents = append(agents, info)
	}
	jsonResp(w, http.StatusOK, map[string]any{"agents": agents})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(ctx); err != nil {
		jsonResp(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	resp := map[string]any{
		"status":  "ok",
		"version": a.version,
		"agents":  len(a.orch.Agents()),
	}
	if a.traces != nil {
		resp["store_trace"] = a.traces.Stats()
	}
	jsonResp(w, http.StatusOK, resp)
}

// handleAudit lists the caller's own audited calls, newest first.
func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.auditLook == nil {
		jsonError(w, "audit log not enabled", http.StatusServiceUnavailable)
		return
	}
	claims := auth.ClaimsFrom(r.Context())
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	entries, err := a.auditLook.Recent(r.Context(), audit.Query{
		Action: q.Get("action"),
		UserID: claims.UserID,
		Limit:  queryInt(q.Get("limit"), 50),
	})
	if err != nil {
		a.logger.Error("reading audit log", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if strings.Contains(err.Error(), "too large") {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func jsonResp(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
