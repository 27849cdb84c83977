package auth

import "context"

type subjectKey struct{}

// ContextWithSubject attaches the authenticated caller to ctx.
func ContextWithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFrom returns the caller stored by the middleware, or nil when the
// request was not authenticated.
func SubjectFrom(ctx context.Context) *Subject {
	subject, _ := ctx.Value(subjectKey{}).(*Subject)
	return subject
}

// CallerName returns the token name of the caller, or "anonymous".
func CallerName(ctx context.Context) string {
	if subject := SubjectFrom(ctx); subject != nil && subject.Name != "" {
		return subject.Name
	}
	return "anonymous"
}
