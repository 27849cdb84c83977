package auth

import (
	"fmt"
	"strings"

	xerrors "SignalProof-Chain/internal/errors"
)

// Permissions checked by the signald routes.
const (
	PermissionDeriveSlots  = "slots:derive"
	PermissionSubmitProofs = "proofs:submit"
	PermissionReadProofs   = "proofs:read"
	// PermissionAll grants every permission.
	PermissionAll = "*"
)

const (
	CodeUnauthorized xerrors.Code = "UNAUTHORIZED"
	CodeForbidden    xerrors.Code = "FORBIDDEN"
)

func init() {
	xerrors.Register(CodeUnauthorized, xerrors.Attributes{
		Message:  "missing or invalid api token",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeForbidden, xerrors.Attributes{
		Message:  "permission denied",
		Severity: xerrors.SeverityWarning,
	})
}

// Common errors returned by the authentication subsystem.
var (
	ErrMissingToken     = xerrors.New(CodeUnauthorized, "missing bearer token")
	ErrInvalidToken     = xerrors.New(CodeUnauthorized, "invalid token")
	ErrPermissionDenied = xerrors.New(CodeForbidden, "permission denied")
	ErrSubjectRevoked   = xerrors.New(CodeForbidden, "token is disabled")
)

// Mode enumerates the supported authentication providers.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeToken    Mode = "token"
)

// Config configures the authentication service.
type Config struct {
	Mode   Mode          `json:"mode"`
	Tokens []TokenConfig `json:"tokens"`
}

// TokenConfig registers one API token. Only the hex SHA-256 digest of the
// token is stored.
type TokenConfig struct {
	Name        string   `json:"name"`
	SHA256      string   `json:"sha256"`
	Permissions []string `json:"permissions"`
	Disabled    bool     `json:"disabled"`
}

// Subject captures the caller resolved from a token and passed to request
// handlers via context.
type Subject struct {
	Name        string
	Permissions []string
	Disabled    bool

	permissionsSet map[string]struct{}
}

func (s *Subject) normalise() {
	if s == nil || s.permissionsSet != nil {
		return
	}
	s.permissionsSet = make(map[string]struct{}, len(s.Permissions))
	for _, perm := range s.Permissions {
		s.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
	}
}

// HasPermission reports whether the subject has the specified permission.
func (s *Subject) HasPermission(permission string) bool {
	if s == nil {
		return false
	}
	s.normalise()
	if _, ok := s.permissionsSet[PermissionAll]; ok {
		return true
	}
	_, ok := s.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Authorize ensures the subject has all required permissions.
func (s *Subject) Authorize(perms ...string) error {
	if s == nil {
		return ErrInvalidToken
	}
	if s.Disabled {
		return ErrSubjectRevoked
	}
	for _, perm := range perms {
		if !s.HasPermission(perm) {
			return xerrors.Wrap(CodeForbidden, ErrPermissionDenied, fmt.Sprintf("missing %s", perm),
				xerrors.WithMetadata("permission", perm))
		}
	}
	return nil
}

// Clone creates a copy of the subject.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	clone := &Subject{
		Name:        s.Name,
		Permissions: append([]string(nil), s.Permissions...),
		Disabled:    s.Disabled,
	}
	clone.normalise()
	return clone
}
