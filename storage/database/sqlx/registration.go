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
	"github.com/trezcool/scholar/core/registration"
)

const registrationColumns = `id, name, email, requested_role, message, status, reviewed_by, reviewed_at, reason,
	user_id, created_at`

type registrationRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Email         string      `db:"email"`
	RequestedRole string      `db:"requested_role"`
	Message       null.String `db:"message"`
	Status        string      `db:"status"`
	ReviewedBy    null.String `db:"reviewed_by"`
	ReviewedAt    null.Time   `db:"reviewed_at"`
	Reason        null.String `db:"reason"`
	UserID        null.String `db:"user_id"`
	CreatedAt     time.Time   `db:"created_at"`
}

func toRegistrationRow(req registration.Request) registrationRow {
	return registrationRow{
		ID:            req.ID,
		Name:          req.Name,
		Email:         req.Email,
		RequestedRole: req.RequestedRole,
		Message:       null.NewString(req.Message, req.Message != ""),
		Status:        string(req.Status),
		ReviewedBy:    null.NewString(req.ReviewedBy, req.ReviewedBy != ""),
		ReviewedAt:    null.TimeFromPtr(core.UTCPtr(req.ReviewedAt)),
		Reason:        null.NewString(req.Reason, req.Reason != ""),
		UserID:        null.NewString(req.UserID, req.UserID != ""),
		CreatedAt:     req.CreatedAt.UTC(),
	}
}

func (r registrationRow) request() registration.Request {
	return registration.Request{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		RequestedRole: r.RequestedRole,
		Message:       r.Message.String,
		Status:        registration.Status(r.Status),
		ReviewedBy:    r.ReviewedBy.String,
		ReviewedAt:    core.UTCPtr(r.ReviewedAt.Ptr()),
		Reason:        r.Reason.String,
		UserID:        r.UserID.String,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type registrationRepository struct {
	base
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(exec core.DBExecutor) *registrationRepository {
	return &registrationRepository{base{exec: exec}}
}

func (repo registrationRepository) CreateRequest(ctx context.Context, req registration.Request, exec ...core.DBExecutor) (registration.Request, error) {
	req.ID = uuid.New().String()
	q := `INSERT INTO registration_request (` + registrationColumns + `) VALUES (:id, :name, :email, :requested_role,
		:message, :status, :reviewed_by, :reviewed_at, :reason, :user_id, :created_at)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, toRegistrationRow(req)); err != nil {
		return registration.Request{}, errors.Wrap(err, "inserting registration request")
	}
	return req, nil
}

func (repo registrationRepository) QueryRequests(ctx context.Context, filter *registration.QueryFilter, exec ...core.DBExecutor) ([]registration.Request, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Status != "" {
			args = append(args, string(filter.Status))
			where = append(where, fmt.Sprintf("status = $%d", len(args)))
		}
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			where = append(where, fmt.Sprintf("(name ILIKE $%[1]d OR email ILIKE $%[1]d)", len(args)))
		}
	}

	q := `SELECT ` + registrationColumns + ` FROM registration_request`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	var rows []registrationRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying registration requests")
	}
	reqs := make([]registration.Request, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.request())
	}
	return reqs, nil
}

func (repo registrationRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (registration.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return registration.Request{}, registration.ErrNotFound
	}
	var rows []registrationRow
	q := `SELECT ` + registrationColumns + ` FROM registration_request WHERE id = $1`
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, id); err != nil {
		return registration.Request{}, errors.Wrap(err, "getting registration request")
	}
	if len(rows) == 0 {
		return registration.Request{}, registration.ErrNotFound
	}
	return rows[0].request(), nil
}

func (repo registrationRepository) PendingRequestExists(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM registration_request WHERE email = $1 AND status = $2)`
	err := repo.getExec(exec).QueryRowContext(ctx, q, email, string(registration.StatusPending)).Scan(&exists)
	return exists, errors.Wrap(err, "checking pending requests")
}

func (repo registrationRepository) UpdateRequest(ctx context.Context, req registration.Request, exec ...core.DBExecutor) (registration.Request, error) {
	q := `UPDATE registration_request SET name = :name, email = :email, requested_role = :requested_role,
		message = :message, status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at,
		reason = :reason, user_id = :user_id WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, toRegistrationRow(req))
	if err != nil {
		return registration.Request{}, errors.Wrap(err, "updating registration request")
	}
	if err = mustAffect(res, registration.ErrNotFound); err != nil {
		return registration.Request{}, err
	}
	return req, nil
}
