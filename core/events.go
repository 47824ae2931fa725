package core

import "context"

// Event subjects
const (
	SubjectSessionCurrentChanged = "scholar.sessions.current.changed"
	SubjectRegistrationReviewed  = "scholar.registrations.reviewed"
	SubjectGradebookArchived     = "scholar.gradebooks.archived"
)

// EventPublisher publishes domain events. Publishing is best-effort: callers log failures and move on.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, v interface{}) error
}
