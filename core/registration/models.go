package registration

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/user"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is a prospective user's application for an account.
type Request struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	RequestedRole string     `json:"requested_role"`
	Message       string     `json:"message,omitempty"`
	Status        Status     `json:"status"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"` // UTC
	Reason        string     `json:"reason,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"` // UTC
}

func (r Request) IsPending() bool { return r.Status == StatusPending }

// NewRequest is what applicants submit. Role is "student" or "teacher".
type NewRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email"`
	Role    string `json:"requested_role" validate:"required,oneof=student teacher"`
	Message string `json:"message" validate:"max=2000"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
	nr.Role = core.CleanString(nr.Role, true /* lower */)
	nr.Message = core.CleanString(nr.Message)
	return validate.Struct(nr)
}

// userRole maps the requested role to its User role value.
func (nr NewRequest) userRole() string {
	if nr.Role == "teacher" {
		return user.RoleTeacher
	}
	return user.RoleStudent
}

type Rejection struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type QueryFilter struct {
	Status Status `query:"status"`
	Search string `query:"search"` // name or email
}

func (qf *QueryFilter) Clean() {
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
	qf.Search = core.CleanString(qf.Search)
}

// Reviewed is published once a request is approved or rejected.
type Reviewed struct {
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}
