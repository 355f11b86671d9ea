package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/shopscout/internal/config"
	"github.com/basket/shopscout/internal/otel"
	"github.com/basket/shopscout/internal/search"
	"github.com/basket/shopscout/internal/shared"
	"github.com/basket/shopscout/internal/telemetry"
)

//go:embed page.html.tmpl
var pageHTML string

const (
	msgInternal     = "Something went wrong. Please try again."
	msgRateLimited  = "Too many searches. Please wait a moment and try again."
	msgTooLarge     = "The request is too large."
	msgBadForm      = "Could not read the submitted form."
	msgBadJSON      = "Request body must be a JSON object with query and platforms."
	traceHeader     = "X-Trace-ID"
	defaultMaxBytes = 64 << 10
)

// Searcher runs one search. engine.Bridge implements it.
type Searcher interface {
	Search(ctx context.Context, query string, platforms []string) (search.SearchResponse, error)
}

// Config wires the server. Searcher is required; everything else has a
// usable zero value.
type Config struct {
	Searcher Searcher
	// MissingSecrets reports unset credentials for /healthz.
	MissingSecrets func() []string

	RateLimit       config.RateLimitConfig
	CORS            config.CORSConfig
	MaxRequestBytes int64

	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

type Server struct {
	cfg     Config
	page    *template.Template
	limiter *RateLimitMiddleware
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New builds a Server. It panics if cfg.Searcher is nil or the embedded page
// does not parse.
func New(cfg Config) *Server {
	if cfg.Searcher == nil {
		panic("gateway: Searcher is required")
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxBytes
	}
	s := &Server{
		cfg: cfg,
		page: template.Must(template.New("page").Funcs(template.FuncMap{
			"join": strings.Join,
		}).Parse(pageHTML)),
		limiter: NewRateLimitMiddleware(cfg.RateLimit, cfg.Metrics),
		tracer:  cfg.Tracer,
		logger:  cfg.Logger,
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(otel.ScopeName)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// StartEviction drops idle rate limit buckets until ctx is done.
func (s *Server) StartEviction(ctx context.Context) {
	s.limiter.StartEviction(ctx, time.Minute, 10*time.Minute)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.limiter.Wrap(http.HandlerFunc(s.handlePage), s.rejectPage))
	mux.Handle("/api/search", NewCORSMiddleware(s.cfg.CORS)(
		s.limiter.Wrap(http.HandlerFunc(s.handleAPISearch), s.rejectAPI),
	))
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics.Handler())
	}

	var h http.Handler = mux
	h = RequestSizeLimitMiddleware(s.cfg.MaxRequestBytes)(h)
	h = s.recoverer(h)
	h = s.withTrace(h)
	return h
}

type platformOption struct {
	Name    string
	Checked bool
}

type pageView struct {
	Query    string
	Options  []platformOption
	Message  string
	Searched bool
	Blocks   []search.PlatformBlock
	// Missing lists requested platforms the agent returned no block for.
	Missing []string
}

func newPageView(query string, selected []string) pageView {
	checked := make(map[string]bool, len(selected))
	for _, p := range selected {
		if name, ok := search.Canonical(p); ok {
			checked[name] = true
		}
	}
	opts := make([]platformOption, 0, len(search.Platforms))
	for _, p := range search.Platforms {
		opts = append(opts, platformOption{Name: p, Checked: checked[p]})
	}
	return pageView{Query: query, Options: opts}
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.render(w, r, http.StatusOK, newPageView("", nil))
	case http.MethodPost:
		s.handleFormSearch(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFormSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		status := statusForBodyError(err)
		view := newPageView("", nil)
		view.Message = msgBadForm
		if status == http.StatusRequestEntityTooLarge {
			view.Message = msgTooLarge
		}
		s.render(w, r, status, view)
		return
	}
	query := r.PostFormValue("query")
	selected := r.PostForm["platforms"]
	view := newPageView(query, selected)

	req, err := search.NewRequest(query, selected)
	if err != nil {
		s.cfg.Metrics.ObserveSearch(string(search.KindValidation), 0)
		view.Message = search.UserMessage(err)
		s.render(w, r, http.StatusBadRequest, view)
		return
	}

	resp, err := s.runSearch(r, req)
	if err != nil {
		view.Message = search.UserMessage(err)
		s.render(w, r, statusFor(err), view)
		return
	}
	view.Searched = true
	view.Blocks = resp.Platforms
	view.Missing = missingPlatforms(req, resp)
	s.render(w, r, http.StatusOK, view)
}

type apiRequest struct {
	Query     string   `json:"query"`
	Platforms []string `json:"platforms"`
}

type apiError struct {
	Error string      `json:"error"`
	Kind  search.Kind `json:"kind"`
}

func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed", Kind: search.KindValidation})
		return
	}
	var body apiRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		status, msg := http.StatusBadRequest, msgBadJSON
		if statusForBodyError(err) == http.StatusRequestEntityTooLarge {
			status, msg = http.StatusRequestEntityTooLarge, msgTooLarge
		}
		writeJSON(w, status, apiError{Error: msg, Kind: search.KindValidation})
		return
	}

	req, err := search.NewRequest(body.Query, body.Platforms)
	if err != nil {
		s.cfg.Metrics.ObserveSearch(string(search.KindValidation), 0)
		writeJSON(w, http.StatusBadRequest, apiError{Error: search.UserMessage(err), Kind: search.KindValidation})
		return
	}
	resp, err := s.runSearch(r, req)
	if err != nil {
		writeJSON(w, statusFor(err), apiError{Error: search.UserMessage(err), Kind: search.KindOf(err)})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// runSearch blocks until the searcher returns. The browser going away does
// not cancel the external call.
func (s *Server) runSearch(r *http.Request, req search.Request) (search.SearchResponse, error) {
	ctx := context.WithoutCancel(r.Context())
	ctx, span := otel.StartServerSpan(ctx, s.tracer, "http.search",
		otel.AttrTraceID.String(shared.TraceID(ctx)),
		otel.AttrPlatforms.String(strings.Join(req.Platforms, ",")),
	)

	if m := s.cfg.Metrics; m != nil {
		m.InFlight.Inc()
		defer m.InFlight.Dec()
	}
	start := time.Now()
	resp, err := s.cfg.Searcher.Search(ctx, req.Query, req.Platforms)

	outcome := "ok"
	if err != nil {
		outcome = string(search.KindOf(err))
	}
	s.cfg.Metrics.ObserveSearch(outcome, time.Since(start).Seconds())
	otel.EndSpan(span, err)
	return resp, err
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	var missing []string
	if s.cfg.MissingSecrets != nil {
		missing = s.cfg.MissingSecrets()
	}
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy":    true,
		"secrets_ok": len(missing) == 0,
		"missing":    missing,
	})
}

func (s *Server) rejectPage(w http.ResponseWriter, r *http.Request) {
	view := newPageView("", nil)
	if r.Method == http.MethodPost && r.ParseForm() == nil {
		view = newPageView(r.PostFormValue("query"), r.PostForm["platforms"])
	}
	view.Message = msgRateLimited
	s.render(w, r, http.StatusTooManyRequests, view)
}

func (s *Server) rejectAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, apiError{Error: msgRateLimited, Kind: "rate_limit"})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, view); err != nil {
		s.logger.Warn("render search page", "trace_id", shared.TraceID(r.Context()), "error", err)
	}
}

func (s *Server) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := shared.NewTraceID()
		ctx := shared.WithTraceID(r.Context(), traceID)
		ctx = shared.WithClientIP(ctx, clientIP(r))
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverer turns a handler panic into a generic message instead of a
// dropped connection.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("handler panic",
				"trace_id", shared.TraceID(r.Context()),
				"path", r.URL.Path,
				"panic", rec,
			)
			if strings.HasPrefix(r.URL.Path, "/api/") {
				writeJSON(w, http.StatusInternalServerError, apiError{Error: msgInternal, Kind: "internal"})
				return
			}
			view := newPageView("", nil)
			view.Message = msgInternal
			s.render(w, r, http.StatusInternalServerError, view)
		}()
		next.ServeHTTP(w, r)
	})
}

func missingPlatforms(req search.Request, resp search.SearchResponse) []string {
	got := make(map[string]bool, len(resp.Platforms))
	for _, b := range resp.Platforms {
		got[b.Platform] = true
	}
	var missing []string
	for _, p := range req.Platforms {
		if !got[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

func statusFor(err error) int {
	switch search.KindOf(err) {
	case search.KindValidation:
		return http.StatusBadRequest
	case search.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func statusForBodyError(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
