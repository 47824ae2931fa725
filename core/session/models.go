package session

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/trezcool/scholar/core"
)

// Term names
const (
	NameSpring = "Spring"
	NameSummer = "Summer"
	NameFall   = "Fall"
	NameWinter = "Winter"
)

var Names = []string{NameSpring, NameSummer, NameFall, NameWinter}

type Status string

const (
	StatusCurrent  Status = "current"
	StatusUpcoming Status = "upcoming"
	StatusPast     Status = "past"
)

// Session is one academic term.
// At most one Session in the store has IsCurrent set; only the Service writes that flag.
type Session struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Year                 int        `json:"year"`
	StartDate            time.Time  `json:"start_date"` // UTC
	EndDate              time.Time  `json:"end_date"`   // UTC
	IsActive             bool       `json:"is_active"`
	IsCurrent            bool       `json:"is_current"`
	Description          string     `json:"description,omitempty"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	WithdrawalDeadline   *time.Time `json:"withdrawal_deadline,omitempty"`
	CreatedAt            time.Time  `json:"created_at"` // UTC
	UpdatedAt            time.Time  `json:"updated_at"` // UTC
}

func (s Session) DisplayName() string {
	return fmt.Sprintf("%s %d", s.Name, s.Year)
}

// Contains reports whether `now` is within [StartDate, EndDate].
func (s Session) Contains(now time.Time) bool {
	return !now.Before(s.StartDate) && !now.After(s.EndDate)
}

func (s Session) Status(now time.Time) Status {
	switch {
	case s.Contains(now):
		return StatusCurrent
	case now.Before(s.StartDate):
		return StatusUpcoming
	default:
		return StatusPast
	}
}

// Progress is the elapsed share of the session in percent, within [0, 100].
func (s Session) Progress(now time.Time) int {
	if now.Before(s.StartDate) {
		return 0
	}
	if now.After(s.EndDate) {
		return 100
	}
	total := s.EndDate.Sub(s.StartDate)
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(now.Sub(s.StartDate)) / float64(total)))
}

// View is a Session along with its derived fields, as served to clients.
type View struct {
	Session
	DisplayName string `json:"display_name"`
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
}

func (s Session) View(now time.Time) View {
	return View{
		Session:     s,
		DisplayName: s.DisplayName(),
		Status:      s.Status(now),
		Progress:    s.Progress(now),
	}
}

func Views(sessions []Session, now time.Time) []View {
	views := make([]View, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, s.View(now))
	}
	return views
}

// NewSession contains information needed to create a new Session.
type NewSession struct {
	Name                 string     `json:"name" yaml:"name"`
	Year                 int        `json:"year" yaml:"year"`
	StartDate            *time.Time `json:"start_date" yaml:"start_date"`
	EndDate              *time.Time `json:"end_date" yaml:"end_date"`
	Description          string     `json:"description" yaml:"description"`
	RegistrationDeadline *time.Time `json:"registration_deadline" yaml:"registration_deadline"`
	WithdrawalDeadline   *time.Time `json:"withdrawal_deadline" yaml:"withdrawal_deadline"`
	IsCurrent            bool       `json:"is_current" yaml:"is_current"`
}

// UpdateSession holds a partial update: nil fields are left untouched.
type UpdateSession struct {
	Name                 *string    `json:"name"`
	Year                 *int       `json:"year"`
	StartDate            *time.Time `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
	Description          *string    `json:"description"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	WithdrawalDeadline   *time.Time `json:"withdrawal_deadline"`
	IsCurrent            *bool      `json:"is_current"`
}

type QueryFilter struct {
	Name   string `query:"name"`
	Year   int    `query:"year"`
	Status Status `query:"status"` // applied on top of the store query
}

func (qf *QueryFilter) Clean() {
	qf.Name = normalizeName(qf.Name)
	qf.Status = Status(core.CleanString(string(qf.Status), true /* lower */))
}

// normalizeName maps "fall", " FALL " etc. to "Fall". Unknown names are returned trimmed.
func normalizeName(name string) string {
	name = core.CleanString(name)
	for _, n := range Names {
		if strings.EqualFold(n, name) {
			return n
		}
	}
	return name
}

func isValidName(name string) bool {
	return core.ContainsString(Names, name)
}

// CurrentChanged is published whenever the current session changes.
type CurrentChanged struct {
	PreviousID string    `json:"previous_id,omitempty"`
	CurrentID  string    `json:"current_id,omitempty"`
	At         time.Time `json:"at"`
}
