package registration

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = core.NewNotFoundError("registration request not found")
)

const (
	msgAccountExists = "an account with this email already exists"
	msgPendingExists = "a pending request with this email already exists"
)

type (
	Repository interface {
		// RunInTx commits every write of fn, or none of them. Writes to other repositories
		// of the same store join the transaction when given `tx`.
		RunInTx(ctx context.Context, fn core.TxFunc) error
		CreateRequest(ctx context.Context, req Request, exec ...core.DBExecutor) (Request, error)
		// QueryRequests lists requests, most recent first.
		QueryRequests(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Request, error)
		GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
		PendingRequestExists(ctx context.Context, email string, exec ...core.DBExecutor) (bool, error)
		UpdateRequest(ctx context.Context, req Request, exec ...core.DBExecutor) (Request, error)
	}

	// UserService is the part of user.Service needed to open accounts.
	UserService interface {
		GetByEmail(ctx context.Context, email string) (user.User, error)
		Create(ctx context.Context, nu user.NewUser, exec ...core.DBExecutor) (user.User, error)
		PasswordResetToken(usr user.User) (uid, token string, err error)
	}

	ServiceInterface interface {
		Submit(ctx context.Context, nr NewRequest) (Request, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Request, error)
		GetByID(ctx context.Context, id string) (Request, error)
		Approve(ctx context.Context, id string, reviewer user.User) (Request, error)
		Reject(ctx context.Context, id string, reviewer user.User, rej Rejection) (Request, error)
	}

	Service struct {
		repo    Repository
		users   UserService
		mailSvc core.EmailService
		events  core.EventPublisher
		logger  core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users UserService, mailSvc core.EmailService, events core.EventPublisher, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, users: users, mailSvc: mailSvc, events: events, logger: logger}
}

func now() time.Time {
	return NowFunc().UTC()
}

// Submit records a pending request, unless the email already has an account or a pending request.
func (svc *Service) Submit(ctx context.Context, nr NewRequest) (Request, error) {
	if err := svc.checkAccountFree(ctx, nr.Email); err != nil {
		return Request{}, err
	}
	pending, err := svc.repo.PendingRequestExists(ctx, nr.Email)
	if err != nil {
		return Request{}, errors.Wrap(err, "checking pending requests")
	}
	if pending {
		return Request{}, core.NewConflictError(msgPendingExists)
	}

	return svc.repo.CreateRequest(ctx, Request{
		Name:          nr.Name,
		Email:         nr.Email,
		RequestedRole: nr.userRole(),
		Message:       nr.Message,
		Status:        StatusPending,
		CreatedAt:     now(),
	})
}

func (svc *Service) checkAccountFree(ctx context.Context, email string) error {
	_, err := svc.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return core.NewConflictError(msgAccountExists)
	case core.IsNotFound(err):
		return nil
	default:
		return errors.Wrap(err, "finding user by email")
	}
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Request, error) {
	return svc.repo.QueryRequests(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Request, error) {
	return svc.repo.GetRequest(ctx, id)
}

func (svc *Service) getPending(ctx context.Context, id string) (Request, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !req.IsPending() {
		return Request{}, core.NewArgumentError("request already %s", req.Status)
	}
	return req, nil
}

// Approve opens the account and e-mails the applicant a link to set their password.
func (svc *Service) Approve(ctx context.Context, id string, reviewer user.User) (Request, error) {
	req, err := svc.getPending(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err = svc.checkAccountFree(ctx, req.Email); err != nil {
		return Request{}, err
	}

	// the account and the approval are stored together: a failed approval leaves no account behind
	var (
		usr        user.User
		uid, token string
	)
	err = svc.repo.RunInTx(ctx, func(tx core.DBExecutor) error {
		var txErr error
		usr, txErr = svc.users.Create(ctx, user.NewUser{
			Name:  req.Name,
			Email: req.Email,
			Roles: []string{req.RequestedRole},
		}, tx)
		if txErr != nil {
			return errors.Wrap(txErr, "creating user")
		}
		if uid, token, txErr = svc.users.PasswordResetToken(usr); txErr != nil {
			return txErr
		}
		req, txErr = svc.markReviewed(ctx, req, reviewer, StatusApproved, "", usr.ID, tx)
		return txErr
	})
	if err != nil {
		return Request{}, err
	}
	svc.publishReviewed(ctx, req)

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: req.Name, Address: req.Email}},
		Subject:      "Registration Approved",
		TemplateName: "registration_approved",
		TemplateData: struct {
			Name     string
			Username string
			UID      string
			Token    string
		}{Name: usr.DisplayName(), Username: usr.Email, UID: uid, Token: token},
	})
	return req, nil
}

func (svc *Service) Reject(ctx context.Context, id string, reviewer user.User, rej Rejection) (Request, error) {
	req, err := svc.getPending(ctx, id)
	if err != nil {
		return Request{}, err
	}

	req, err = svc.markReviewed(ctx, req, reviewer, StatusRejected, core.CleanString(rej.Reason), "")
	if err != nil {
		return Request{}, err
	}
	svc.publishReviewed(ctx, req)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: req.Name, Address: req.Email}},
		Subject:      "Registration Declined",
		TemplateName: "registration_rejected",
		TemplateData: struct {
			Name   string
			Reason string
		}{Name: req.Name, Reason: req.Reason},
	})
	return req, nil
}

func (svc *Service) markReviewed(
	ctx context.Context,
	req Request,
	reviewer user.User,
	status Status,
	reason, userID string,
	exec ...core.DBExecutor,
) (Request, error) {
	tstamp := now()
	req.Status = status
	req.ReviewedBy = reviewer.ID
	req.ReviewedAt = &tstamp
	req.Reason = reason
	req.UserID = userID

	req, err := svc.repo.UpdateRequest(ctx, req, exec...)
	if err != nil {
		return Request{}, errors.Wrap(err, "updating registration request")
	}
	return req, nil
}

func (svc *Service) publishReviewed(ctx context.Context, req Request) {
	evt := Reviewed{RequestID: req.ID, Status: req.Status, UserID: req.UserID, At: *req.ReviewedAt}
	if err := svc.events.Publish(ctx, core.SubjectRegistrationReviewed, evt); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing %s: %v", core.SubjectRegistrationReviewed, err), err)
	}
}
