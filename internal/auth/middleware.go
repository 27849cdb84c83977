package auth

import (
	"net/http"
	"time"

	xerrors "SignalProof-Chain/internal/errors"
)

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, err error)

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// RequiredPermissions 定义每个 HTTP 方法所需的权限列表，"*" 匹配任意方法。
	RequiredPermissions map[string][]string
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
	// OnError 输出错误响应，缺省时使用 http.Error。
	OnError ErrorWriter
}

// Middleware 返回一个 HTTP 中间件，用于处理身份认证和授权。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	onError := cfg.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, err error) {
			status := http.StatusUnauthorized
			if isForbidden(err) {
				status = http.StatusForbidden
			}
			http.Error(w, http.StatusText(status), status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.AuthenticateRequest(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, err)
				s.audit.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"error", err.Error(),
				)
				return
			}
			perms := cfg.RequiredPermissions[r.Method]
			if len(perms) == 0 {
				perms = cfg.RequiredPermissions["*"]
			}
			if err := subject.Authorize(perms...); err != nil {
				onError(w, err)
				s.audit.Warn("permission_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"error", err.Error(),
					"token", subject.Name,
				)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(ContextWithSubject(r.Context(), subject)))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			s.audit.Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"token", subject.Name,
			)
		})
	}
}

func isForbidden(err error) bool {
	return xerrors.CodeOf(err) == CodeForbidden
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
