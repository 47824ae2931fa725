package session

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = core.NewNotFoundError("session not found")

	defaultOrdering = []core.DBOrdering{{Field: "start_date", Ascending: false}}
)

const (
	msgNameRequired    = "name required"
	msgInvalidName     = "invalid session name"
	msgYearRequired    = "year required"
	msgDatesRequired   = "dates required"
	msgStartBeforeEnd  = "start must precede end"
	msgSessionConflict = "session already exists"
)

type (
	Repository interface {
		// CreateSession persists a new Session with IsCurrent unset and assigns its ID.
		CreateSession(ctx context.Context, sess Session, exec ...core.DBExecutor) (Session, error)
		// QuerySessions lists sessions; without ordering, they come in store (creation) order.
		QuerySessions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Session, error)
		GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (Session, error)
		SessionExists(ctx context.Context, name string, year int, excludedID string, exec ...core.DBExecutor) (bool, error)
		// UpdateSession saves every field except IsCurrent.
		UpdateSession(ctx context.Context, sess Session, exec ...core.DBExecutor) (Session, error)
		DeleteSession(ctx context.Context, id string, exec ...core.DBExecutor) error
		// MarkCurrent atomically flags `currentID` (none if empty) as the only current Session.
		// updatedAt is written on the target and on every record whose flag changes.
		// It returns the number of records written.
		MarkCurrent(ctx context.Context, currentID string, updatedAt time.Time, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		QueryAll(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Session, error)
		GetByID(ctx context.Context, id string) (Session, error)
		GetCurrent(ctx context.Context) (*Session, error)
		GetNext(ctx context.Context) (*Session, error)
		Create(ctx context.Context, ns NewSession) (Session, error)
		Update(ctx context.Context, id string, us UpdateSession) (Session, error)
		Delete(ctx context.Context, id string) error
		SetCurrent(ctx context.Context, id string) (Session, error)
		Reconcile(ctx context.Context) (*Session, error)
	}

	// Service owns every write of the IsCurrent flag.
	Service struct {
		repo   Repository
		events core.EventPublisher
		logger core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, events core.EventPublisher, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, events: events, logger: logger}
}

func now() time.Time {
	return NowFunc().UTC()
}

// QueryAll lists sessions, most recent first unless `ordering` says otherwise.
func (svc *Service) QueryAll(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Session, error) {
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	sessions, err := svc.repo.QuerySessions(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	if filter != nil {
		sessions = filterByStatus(sessions, filter.Status, now())
	}
	return sessions, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

// GetCurrent resolves the current session from the store.
func (svc *Service) GetCurrent(ctx context.Context) (*Session, error) {
	sessions, err := svc.repo.QuerySessions(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return ResolveCurrent(sessions, now()), nil
}

func (svc *Service) GetNext(ctx context.Context) (*Session, error) {
	sessions, err := svc.repo.QuerySessions(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return ResolveNext(sessions, now()), nil
}

// Create validates and persists a new Session, then either makes it current (IsCurrent override) or reconciles.
func (svc *Service) Create(ctx context.Context, ns NewSession) (Session, error) {
	ns.Name = normalizeName(ns.Name)

	switch {
	case ns.Name == "":
		return Session{}, core.NewArgumentError(msgNameRequired)
	case ns.Year == 0:
		return Session{}, core.NewArgumentError(msgYearRequired)
	case ns.StartDate == nil || ns.EndDate == nil || ns.StartDate.IsZero() || ns.EndDate.IsZero():
		return Session{}, core.NewArgumentError(msgDatesRequired)
	case !ns.StartDate.Before(*ns.EndDate):
		return Session{}, core.NewArgumentError(msgStartBeforeEnd)
	// the name must also be a known term, once the required checks pass
	case !isValidName(ns.Name):
		return Session{}, core.NewArgumentError(msgInvalidName)
	}

	exists, err := svc.repo.SessionExists(ctx, ns.Name, ns.Year, "")
	if err != nil {
		return Session{}, errors.Wrap(err, "checking session uniqueness")
	}
	if exists {
		return Session{}, core.NewConflictError(msgSessionConflict)
	}

	tstamp := now()
	sess, err := svc.repo.CreateSession(ctx, Session{
		Name:                 ns.Name,
		Year:                 ns.Year,
		StartDate:            ns.StartDate.UTC(),
		EndDate:              ns.EndDate.UTC(),
		IsActive:             true,
		Description:          core.CleanString(ns.Description),
		RegistrationDeadline: core.UTCPtr(ns.RegistrationDeadline),
		WithdrawalDeadline:   core.UTCPtr(ns.WithdrawalDeadline),
		CreatedAt:            tstamp,
		UpdatedAt:            tstamp,
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}

	if ns.IsCurrent {
		return svc.SetCurrent(ctx, sess.ID)
	}
	if _, err = svc.Reconcile(ctx); err != nil {
		return Session{}, err
	}
	return svc.repo.GetSession(ctx, sess.ID)
}

// Update applies the non-nil fields of `us`. Setting IsCurrent to true only makes the Session current:
// the other fields are ignored.
func (svc *Service) Update(ctx context.Context, id string, us UpdateSession) (Session, error) {
	if us.IsCurrent != nil && *us.IsCurrent {
		return svc.SetCurrent(ctx, id)
	}

	sess, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	origName, origYear := sess.Name, sess.Year

	if us.Name != nil {
		sess.Name = normalizeName(*us.Name)
		if sess.Name == "" {
			return Session{}, core.NewArgumentError(msgNameRequired)
		}
		if !isValidName(sess.Name) {
			return Session{}, core.NewArgumentError(msgInvalidName)
		}
	}
	if us.Year != nil {
		if *us.Year == 0 {
			return Session{}, core.NewArgumentError(msgYearRequired)
		}
		sess.Year = *us.Year
	}
	if us.StartDate != nil {
		sess.StartDate = us.StartDate.UTC()
	}
	if us.EndDate != nil {
		sess.EndDate = us.EndDate.UTC()
	}
	if !sess.StartDate.Before(sess.EndDate) {
		return Session{}, core.NewArgumentError(msgStartBeforeEnd)
	}
	if us.Description != nil {
		sess.Description = core.CleanString(*us.Description)
	}
	if us.RegistrationDeadline != nil {
		sess.RegistrationDeadline = core.UTCPtr(us.RegistrationDeadline)
	}
	if us.WithdrawalDeadline != nil {
		sess.WithdrawalDeadline = core.UTCPtr(us.WithdrawalDeadline)
	}

	if sess.Name != origName || sess.Year != origYear {
		exists, err := svc.repo.SessionExists(ctx, sess.Name, sess.Year, sess.ID)
		if err != nil {
			return Session{}, errors.Wrap(err, "checking session uniqueness")
		}
		if exists {
			return Session{}, core.NewConflictError(msgSessionConflict)
		}
	}

	tstamp := now()
	sess.UpdatedAt = tstamp
	if _, err = svc.repo.UpdateSession(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "updating session")
	}

	// clearing the manual flag hands currency back to the calendar
	if us.IsCurrent != nil && sess.IsCurrent {
		if _, err = svc.repo.MarkCurrent(ctx, "", tstamp); err != nil {
			return Session{}, errors.Wrap(err, "clearing current session")
		}
	}

	if _, err = svc.Reconcile(ctx); err != nil {
		return Session{}, err
	}
	return svc.repo.GetSession(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteSession(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return err
		}
		return errors.Wrap(err, "deleting session")
	}
	_, err := svc.Reconcile(ctx)
	return err
}

// SetCurrent makes the Session the only current one, in a single store write.
func (svc *Service) SetCurrent(ctx context.Context, id string) (Session, error) {
	sessions, err := svc.repo.QuerySessions(ctx, nil, nil)
	if err != nil {
		return Session{}, errors.Wrap(err, "querying sessions")
	}

	var found bool
	for _, s := range sessions {
		if s.ID == id {
			found = true
			break
		}
	}
	if !found {
		return Session{}, ErrNotFound
	}

	tstamp := now()
	if _, err = svc.repo.MarkCurrent(ctx, id, tstamp); err != nil {
		return Session{}, errors.Wrap(err, "marking current session")
	}
	svc.publishChange(ctx, firstFlagged(sessions), id, tstamp)

	return svc.repo.GetSession(ctx, id)
}

// Reconcile recomputes the current session (manual flag first, then calendar) and rewrites
// every IsCurrent flag to match. It returns the current session, if any.
func (svc *Service) Reconcile(ctx context.Context) (*Session, error) {
	sessions, err := svc.repo.QuerySessions(ctx, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}

	tstamp := now()
	flagged := flaggedIDs(sessions)
	if len(flagged) > 1 {
		svc.logger.Warn(
			fmt.Sprintf("%d sessions flagged as current; keeping %s", len(flagged), flagged[0]),
			map[string]interface{}{"session_ids": flagged},
		)
	}

	var targetID string
	cur := ResolveCurrent(sessions, tstamp)
	if cur != nil {
		targetID = cur.ID
		cur.IsCurrent = true
	}

	consistent := (len(flagged) == 0 && targetID == "") || (len(flagged) == 1 && flagged[0] == targetID)
	if !consistent {
		if _, err = svc.repo.MarkCurrent(ctx, targetID, tstamp); err != nil {
			return nil, errors.Wrap(err, "marking current session")
		}
		if cur != nil {
			cur.UpdatedAt = tstamp
		}
	}
	svc.logger.Debug(fmt.Sprintf("reconciled %d sessions: current=%q rewritten=%t", len(sessions), targetID, !consistent))
	svc.publishChange(ctx, firstFlagged(sessions), targetID, tstamp)
	return cur, nil
}

func (svc *Service) publishChange(ctx context.Context, previousID, currentID string, at time.Time) {
	if previousID == currentID {
		return
	}
	evt := CurrentChanged{PreviousID: previousID, CurrentID: currentID, At: at}
	if err := svc.events.Publish(ctx, core.SubjectSessionCurrentChanged, evt); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing %s: %v", core.SubjectSessionCurrentChanged, err), err)
	}
}

func firstFlagged(sessions []Session) string {
	if ids := flaggedIDs(sessions); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
