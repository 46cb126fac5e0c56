package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/core"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/middleware/ratelimit"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/middleware/security"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/middleware/trace"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/services"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
	appweb "github.com/ahproster-ops/olyfo-funding-portal/web"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// Options configures NewServer. Records and Sessions are required.
type Options struct {
	Addr           string
	Records        *services.RecordService
	Sessions       *session.Manager
	Logger         *log.Logger
	CookieSecure   bool
	RateLimit      ratelimit.Config
	TrustedProxies []string
}

type Server struct {
	http.Server
	templates *template.Template
	records   *services.RecordService
	sessions  *session.Manager
	logger    *log.Logger
	sl        *log.StructuredLogger
	now       func() time.Time

	cookieSecure bool

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	metrics  appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	start         time.Time
	logins        atomic.Int64
	loginFailures atomic.Int64
	logouts       atomic.Int64
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	rl := opts.RateLimit
	if rl.Requests <= 0 {
		rl = ratelimit.DefaultConfig()
	}

	s := &Server{
		records:      opts.Records,
		sessions:     opts.Sessions,
		logger:       logger,
		sl:           log.NewStructuredLogger(logger),
		now:          time.Now,
		cookieSecure: opts.CookieSecure,
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(rl),
	}
	s.metrics.start = s.now()
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
		t = nil
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, s.rateLimited)

	var h http.Handler = mux
	h = limit(h)
	h = s.detector.Middleware(logger)(h)
	h = headers.Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

var templateFuncs = template.FuncMap{
	"formatDate": core.FormatDate,
	"formatAmount": func(a core.Amount) string {
		return core.FormatAmount(a.Float())
	},
	"singular": func(k core.Kind) string { return k.Singular() },
}

func (s *Server) routes(mux *http.ServeMux) {
	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /ui/calculator", s.handleCalculatorForm)
	mux.HandleFunc("POST /ui/calculator", s.handleCalculate)

	mux.HandleFunc("GET /ui/dashboard", s.withSession(s.handleDashboard))
	mux.HandleFunc("GET /ui/admin", s.withSession(s.handleAdmin))
	mux.HandleFunc("GET /ui/{kind}", s.withSession(s.handleList))
	mux.HandleFunc("GET /ui/{kind}/new", s.withSession(s.handleNewForm))
	mux.HandleFunc("POST /records/{kind}", s.withSession(s.handleCreate))
	mux.HandleFunc("DELETE /records/{kind}/{id}", s.withSession(s.handleDelete))
	mux.HandleFunc("GET /operations/export.xlsx", s.withSession(s.handleExport))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again later.").
		NoSwap().
		TriggerWarningNotification("Too many requests. Please try again later.").
		Write(w)
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render writes a template with status, logging render failures.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	b := NewHTMXResponse().Status(status)
	if err := b.BodyTemplate(s.templates, name, data); err != nil {
		s.sl.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{log.FieldTemplate: name})
	}
	b.Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"templates": "ok", "backend": "ok"}
	status := http.StatusOK
	if s.templates == nil {
		checks["templates"] = errTemplatesNotLoaded.Error()
		status = http.StatusServiceUnavailable
	}
	if err := s.records.Ping(r.Context()); err != nil {
		checks["backend"] = err.Error()
		status = http.StatusServiceUnavailable
		s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldBackend, "ping", log.FieldError, err)
	}
	writeJSON(w, status, map[string]any{
		"ready":  status == http.StatusOK,
		"checks": checks,
	})
}

// handleMetrics exposes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	dm := s.detector.GetMetrics()
	rm := s.limiter.GetMetrics()
	rs := s.records.Stats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	counters := []struct {
		name  string
		value int64
	}{
		{"olyfo_http_requests_total", tm.TotalRequests},
		{"olyfo_http_server_errors_total", tm.ServerErrors},
		{"olyfo_http_response_time_avg_microseconds", tm.AverageResponseTime},
		{"olyfo_security_suspicious_requests_total", dm.SuspiciousRequests},
		{"olyfo_security_blocked_requests_total", dm.BlockedRequests},
		{"olyfo_ratelimit_hits_total", rm.TotalHits},
		{"olyfo_ratelimit_clients", rm.ClientCount},
		{"olyfo_records_created_total", rs.Created.Load()},
		{"olyfo_records_deleted_total", rs.Deleted.Load()},
		{"olyfo_records_failures_total", rs.Failures.Load()},
		{"olyfo_logins_total", s.metrics.logins.Load()},
		{"olyfo_login_failures_total", s.metrics.loginFailures.Load()},
		{"olyfo_logouts_total", s.metrics.logouts.Load()},
		{"olyfo_uptime_seconds", int64(s.now().Sub(s.metrics.start).Seconds())},
	}
	for _, c := range counters {
		_, _ = fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}
}
