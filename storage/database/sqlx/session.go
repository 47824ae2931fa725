package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
)

const sessionColumns = `id, name, year, start_date, end_date, is_active, is_current, description,
	registration_deadline, withdrawal_deadline, created_at, updated_at`

var sessionOrderings = map[string]string{
	"name":       "name",
	"year":       "year",
	"start_date": "start_date",
	"end_date":   "end_date",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type sessionRow struct {
	ID                   string      `db:"id"`
	Name                 string      `db:"name"`
	Year                 int         `db:"year"`
	StartDate            time.Time   `db:"start_date"`
	EndDate              time.Time   `db:"end_date"`
	IsActive             bool        `db:"is_active"`
	IsCurrent            bool        `db:"is_current"`
	Description          null.String `db:"description"`
	RegistrationDeadline null.Time   `db:"registration_deadline"`
	WithdrawalDeadline   null.Time   `db:"withdrawal_deadline"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

func toSessionRow(s session.Session) sessionRow {
	return sessionRow{
		ID:                   s.ID,
		Name:                 s.Name,
		Year:                 s.Year,
		StartDate:            s.StartDate.UTC(),
		EndDate:              s.EndDate.UTC(),
		IsActive:             s.IsActive,
		IsCurrent:            s.IsCurrent,
		Description:          null.NewString(s.Description, s.Description != ""),
		RegistrationDeadline: null.TimeFromPtr(core.UTCPtr(s.RegistrationDeadline)),
		WithdrawalDeadline:   null.TimeFromPtr(core.UTCPtr(s.WithdrawalDeadline)),
		CreatedAt:            s.CreatedAt.UTC(),
		UpdatedAt:            s.UpdatedAt.UTC(),
	}
}

func (r sessionRow) session() session.Session {
	return session.Session{
		ID:                   r.ID,
		Name:                 r.Name,
		Year:                 r.Year,
		StartDate:            r.StartDate.UTC(),
		EndDate:              r.EndDate.UTC(),
		IsActive:             r.IsActive,
		IsCurrent:            r.IsCurrent,
		Description:          r.Description.String,
		RegistrationDeadline: core.UTCPtr(r.RegistrationDeadline.Ptr()),
		WithdrawalDeadline:   core.UTCPtr(r.WithdrawalDeadline.Ptr()),
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

type sessionRepository struct {
	base
}

var _ session.Repository = (*sessionRepository)(nil) // interface compliance check

func NewSessionRepository(exec core.DBExecutor) *sessionRepository {
	return &sessionRepository{base{exec: exec}}
}

func (repo sessionRepository) CreateSession(ctx context.Context, sess session.Session, exec ...core.DBExecutor) (session.Session, error) {
	sess.ID = uuid.New().String()
	sess.IsCurrent = false
	q := `INSERT INTO academic_session (` + sessionColumns + `) VALUES (:id, :name, :year, :start_date, :end_date,
		:is_active, :is_current, :description, :registration_deadline, :withdrawal_deadline, :created_at, :updated_at)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, toSessionRow(sess)); err != nil {
		return session.Session{}, errors.Wrap(err, "inserting session")
	}
	return sess, nil
}

// QuerySessions orders by insertion time (created_at, then id) when no ordering applies.
func (repo sessionRepository) QuerySessions(ctx context.Context, filter *session.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]session.Session, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Name != "" {
			args = append(args, filter.Name)
			where = append(where, fmt.Sprintf("name = $%d", len(args)))
		}
		if filter.Year != 0 {
			args = append(args, filter.Year)
			where = append(where, fmt.Sprintf("year = $%d", len(args)))
		}
	}

	q := `SELECT ` + sessionColumns + ` FROM academic_session`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderBy(ordering, sessionOrderings, "created_at ASC, id ASC")

	var rows []sessionRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	sessions := make([]session.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo sessionRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (session.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return session.Session{}, session.ErrNotFound
	}
	var rows []sessionRow
	q := `SELECT ` + sessionColumns + ` FROM academic_session WHERE id = $1`
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, id); err != nil {
		return session.Session{}, errors.Wrap(err, "getting session")
	}
	if len(rows) == 0 {
		return session.Session{}, session.ErrNotFound
	}
	return rows[0].session(), nil
}

func (repo sessionRepository) SessionExists(ctx context.Context, name string, year int, excludedID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM academic_session WHERE name = $1 AND year = $2 AND id::text <> $3)`
	err := repo.getExec(exec).QueryRowContext(ctx, q, name, year, excludedID).Scan(&exists)
	return exists, errors.Wrap(err, "checking session existence")
}

func (repo sessionRepository) UpdateSession(ctx context.Context, sess session.Session, exec ...core.DBExecutor) (session.Session, error) {
	q := `UPDATE academic_session SET name = :name, year = :year, start_date = :start_date, end_date = :end_date,
		is_active = :is_active, description = :description, registration_deadline = :registration_deadline,
		withdrawal_deadline = :withdrawal_deadline, updated_at = :updated_at
		WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, toSessionRow(sess))
	if err != nil {
		return session.Session{}, errors.Wrap(err, "updating session")
	}
	if err = mustAffect(res, session.ErrNotFound); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

func (repo sessionRepository) DeleteSession(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return session.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM academic_session WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return mustAffect(res, session.ErrNotFound)
}

// MarkCurrent moves the flag in a single statement; the deferred exclusion constraint is checked at commit.
func (repo sessionRepository) MarkCurrent(ctx context.Context, currentID string, updatedAt time.Time, exec ...core.DBExecutor) (int, error) {
	q := `UPDATE academic_session SET is_current = (id::text = $1), updated_at = $2
		WHERE is_current <> (id::text = $1) OR id::text = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q, currentID, updatedAt.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "marking current session")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "reading affected rows")
}
