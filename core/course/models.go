package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/user"
)

type Course struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	SessionID   string    `json:"session_id"`
	TeacherID   string    `json:"teacher_id,omitempty"`
	StudentIDs  []string  `json:"student_ids"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (c Course) HasStudent(id string) bool {
	return core.ContainsString(c.StudentIDs, id)
}

// CanManage reports whether `usr` may edit the course's assignments and grades.
func (c Course) CanManage(usr user.User) bool {
	return usr.IsAdmin() || (c.TeacherID != "" && c.TeacherID == usr.ID)
}

func (c Course) CanView(usr user.User) bool {
	return c.CanManage(usr) || c.HasStudent(usr.ID)
}

type Assignment struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"` // UTC
	MaxPoints   float64    `json:"max_points"`
	Weight      float64    `json:"weight"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// Grade is unique per (AssignmentID, StudentID); grading again overwrites it.
type Grade struct {
	AssignmentID string    `json:"assignment_id"`
	StudentID    string    `json:"student_id"`
	Points       float64   `json:"points"`
	Feedback     string    `json:"feedback,omitempty"`
	GradedAt     time.Time `json:"graded_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code        string   `json:"code" validate:"required,max=20,coursecode"`
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description"`
	SessionID   string   `json:"session_id" validate:"required"`
	TeacherID   string   `json:"teacher_id"`
	StudentIDs  []string `json:"student_ids"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Code = core.CleanString(nc.Code)
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.SessionID = core.CleanString(nc.SessionID)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	return validate.Struct(nc)
}

// UpdateCourse holds a partial update: nil fields are left untouched.
// An empty TeacherID unassigns the teacher.
type UpdateCourse struct {
	Code        *string `json:"code" validate:"omitempty,min=1,max=20,coursecode"`
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	TeacherID   *string `json:"teacher_id"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	cleanPtr(uc.Code)
	cleanPtr(uc.Title)
	cleanPtr(uc.Description)
	cleanPtr(uc.TeacherID)
	return validate.Struct(uc)
}

type NewAssignment struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	MaxPoints   float64    `json:"max_points" validate:"gt=0"`
	Weight      float64    `json:"weight" validate:"gte=0"` // 0 means the default weight
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	return validate.Struct(na)
}

type UpdateAssignment struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	MaxPoints   *float64   `json:"max_points" validate:"omitempty,gt=0"`
	Weight      *float64   `json:"weight" validate:"omitempty,gt=0"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	cleanPtr(ua.Title)
	cleanPtr(ua.Description)
	return validate.Struct(ua)
}

type NewGrade struct {
	StudentID string  `json:"student_id" validate:"required"`
	Points    float64 `json:"points" validate:"gte=0"`
	Feedback  string  `json:"feedback"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.StudentID = core.CleanString(ng.StudentID)
	ng.Feedback = core.CleanString(ng.Feedback)
	return validate.Struct(ng)
}

// QueryFilter applies AND operation on its non-empty fields.
type QueryFilter struct {
	SessionID string `query:"session_id"`
	TeacherID string `query:"teacher_id"`
	StudentID string `query:"student_id"`
	Search    string `query:"search"` // code or title, case-insensitive
}

func (qf *QueryFilter) Clean() {
	qf.SessionID = core.CleanString(qf.SessionID)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Search = core.CleanString(qf.Search)
}

func cleanPtr(s *string) {
	if s != nil {
		*s = core.CleanString(*s)
	}
}
