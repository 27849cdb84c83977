package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"SignalProof-Chain/internal/auth"
	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/observability/metrics"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/pkg/logger"
)

// Server 负责暴露 REST 接口：槽位推导与证明任务。
type Server struct {
	addr          string
	jobs          *job.Service
	memo          *slot.Memo
	auth          *auth.Service
	metrics       *metrics.Collector
	metricsPath   string
	readTimeout   time.Duration
	writeTimeout  time.Duration
	shutdownGrace time.Duration
	logger        *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithMetrics 暴露 Prometheus 指标并记录请求耗时。
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = c
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithMemo 共享槽位推导缓存。
func WithMemo(m *slot.Memo) Option {
	return func(s *Server) {
		if m != nil {
			s.memo = m
		}
	}
}

// WithAuth 为 /api/v1 路由启用令牌认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithTimeouts 设置 HTTP 读写超时与优雅退出时间。
func WithTimeouts(read, write, grace time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if grace > 0 {
			s.shutdownGrace = grace
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, jobs *job.Service, opts ...Option) *Server {
	s := &Server{
		addr:          addr,
		jobs:          jobs,
		metricsPath:   "/metrics",
		readTimeout:   15 * time.Second,
		writeTimeout:  30 * time.Second,
		shutdownGrace: 5 * time.Second,
		logger:        logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.memo == nil {
		s.memo = slot.NewMemo(4096)
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.instrument("/healthz", http.HandlerFunc(s.handleHealth)))
	derive := map[string][]string{"*": {auth.PermissionDeriveSlots}}
	proofs := map[string][]string{
		http.MethodGet:  {auth.PermissionReadProofs},
		http.MethodPost: {auth.PermissionSubmitProofs},
	}
	s.route(mux, "/api/v1/slots", "/api/v1/slots", derive, s.handleSlots)
	s.route(mux, "/api/v1/base-slot", "/api/v1/base-slot", derive, s.handleBaseSlot)
	s.route(mux, "/api/v1/proofs", "/api/v1/proofs", proofs, s.handleProofs)
	s.route(mux, "/api/v1/proofs/", "/api/v1/proofs/{id}", proofs, s.handleProofDetail)
	if s.metrics != nil {
		mux.Handle(s.metricsPath, s.metrics.Handler())
	}
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, perms map[string][]string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.auth != nil {
		handler = s.auth.Middleware(auth.MiddlewareConfig{
			RequiredPermissions: perms,
			AuditEvent:          name,
			OnError:             writeError,
		})(handler)
	}
	mux.Handle(pattern, s.instrument(name, handler))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API 服务已启动", slog.String("address", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument 记录每个路由的请求数与耗时。
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorPayload{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "仅支持 " + allowed,
	}})
}
