package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/pkg/logger"
)

type tokenEntry struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// Service 负责 HTTP 端点的身份验证和授权。
type Service struct {
	mode   Mode
	tokens []tokenEntry
	audit  *slog.Logger
}

// NewService 构造身份认证服务实例。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	svc := &Service{mode: mode, audit: logger.Audit()}

	switch mode {
	case ModeDisabled:
		return svc, nil
	case ModeToken:
	default:
		return nil, xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("unsupported auth mode: %s", cfg.Mode),
			xerrors.WithField("auth.mode"))
	}

	if len(cfg.Tokens) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "token mode requires at least one token",
			xerrors.WithField("auth.tokens"))
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for i, tc := range cfg.Tokens {
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			name = fmt.Sprintf("token-%d", i)
		}
		if _, dup := seen[name]; dup {
			return nil, xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("duplicate token name %q", name),
				xerrors.WithField("auth.tokens"))
		}
		seen[name] = struct{}{}

		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(tc.SHA256), "0x"))
		if err != nil || len(raw) != sha256.Size {
			return nil, xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("token %q: sha256 must be 32 hex bytes", name),
				xerrors.WithField("auth.tokens.sha256"))
		}
		entry := tokenEntry{subject: &Subject{
			Name:        name,
			Permissions: append([]string(nil), tc.Permissions...),
			Disabled:    tc.Disabled,
		}}
		copy(entry.digest[:], raw)
		entry.subject.normalise()
		svc.tokens = append(svc.tokens, entry)
	}
	return svc, nil
}

// Mode 返回当前身份认证服务的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool {
	return s.Mode() != ModeDisabled
}

// AuthenticateRequest 验证 Authorization 头并返回对应的主体。
func (s *Service) AuthenticateRequest(authorization string) (*Subject, error) {
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return nil, ErrMissingToken
	}
	return s.lookup(token)
}

func (s *Service) lookup(token string) (*Subject, error) {
	digest := sha256.Sum256([]byte(token))
	var found *Subject
	// 遍历全部条目，比较耗时与命中位置无关。
	for _, entry := range s.tokens {
		if subtle.ConstantTimeCompare(entry.digest[:], digest[:]) == 1 {
			found = entry.subject
		}
	}
	if found == nil {
		return nil, ErrInvalidToken
	}
	if found.Disabled {
		return nil, ErrSubjectRevoked
	}
	return found.Clone(), nil
}

// HashToken 返回令牌的十六进制 SHA-256 摘要，用于写入配置。
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
