package course

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound           = core.NewNotFoundError("course not found")
	ErrAssignmentNotFound = core.NewNotFoundError("assignment not found")

	defaultWeight   = 1.0
	defaultOrdering = []core.DBOrdering{{Field: "code", Ascending: true}}
)

type (
	Repository interface {
		// RunInTx commits every write of fn, or none of them.
		RunInTx(ctx context.Context, fn core.TxFunc) error
		// CreateCourse persists the Course without its students (see SetCourseStudents).
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		CourseCodeExists(ctx context.Context, sessionID, code, excludedID string, exec ...core.DBExecutor) (bool, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		// SetCourseStudents replaces the enrolment list.
		SetCourseStudents(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) error
		// DeleteCourse also deletes the course's assignments and grades.
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		// QueryAssignments lists a course's assignments by due date (undated last), then creation.
		QueryAssignments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Assignment, error)
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error

		UpsertGrade(ctx context.Context, g Grade, exec ...core.DBExecutor) (Grade, error)
		QueryGrades(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Grade, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	SessionGetter interface {
		GetByID(ctx context.Context, id string) (session.Session, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, id string) error
		SetStudents(ctx context.Context, id string, studentIDs []string) (Course, error)

		CreateAssignment(ctx context.Context, courseID string, na NewAssignment) (Assignment, error)
		QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error)
		GetAssignment(ctx context.Context, courseID, id string) (Assignment, error)
		UpdateAssignment(ctx context.Context, courseID, id string, ua UpdateAssignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, courseID, id string) error
		RecordGrade(ctx context.Context, courseID, assignmentID string, ng NewGrade) (Grade, error)

		Gradebook(ctx context.Context, courseID string) (Gradebook, error)
		ExportCSV(ctx context.Context, courseID string) (filename string, content []byte, err error)
		ArchiveGradebook(ctx context.Context, courseID string) (Archive, error)
	}

	// Archive locates a gradebook export kept in the file store.
	Archive struct {
		Key       string    `json:"key"`
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	// Archived is published once a gradebook export is stored.
	Archived struct {
		CourseID string    `json:"course_id"`
		Key      string    `json:"key"`
		At       time.Time `json:"at"`
	}

	Service struct {
		repo       Repository
		users      UserGetter
		sessions   SessionGetter
		files      core.FileStore
		events     core.EventPublisher
		logger     core.Logger
		presignTTL time.Duration
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	repo Repository,
	users UserGetter,
	sessions SessionGetter,
	files core.FileStore,
	events core.EventPublisher,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(sessions, "sessions"),
		vala.IsNotNil(files, "files"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:       repo,
		users:      users,
		sessions:   sessions,
		files:      files,
		events:     events,
		logger:     logger,
		presignTTL: conf.S3.PresignTTL,
	}
}

func now() time.Time {
	return NowFunc().UTC()
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if _, err := svc.sessions.GetByID(ctx, nc.SessionID); err != nil {
		if core.IsNotFound(err) {
			return Course{}, core.NewArgumentError("session %q not found", nc.SessionID)
		}
		return Course{}, errors.Wrap(err, "finding session")
	}
	if err := svc.checkTeacher(ctx, nc.TeacherID); err != nil {
		return Course{}, err
	}
	studentIDs, err := svc.checkStudents(ctx, nc.StudentIDs)
	if err != nil {
		return Course{}, err
	}
	if err = svc.checkCode(ctx, nc.SessionID, nc.Code, ""); err != nil {
		return Course{}, err
	}

	tstamp := now()
	var c Course
	err = svc.repo.RunInTx(ctx, func(tx core.DBExecutor) error {
		var txErr error
		c, txErr = svc.repo.CreateCourse(ctx, Course{
			Code:        nc.Code,
			Title:       nc.Title,
			Description: nc.Description,
			SessionID:   nc.SessionID,
			TeacherID:   nc.TeacherID,
			CreatedAt:   tstamp,
			UpdatedAt:   tstamp,
		}, tx)
		if txErr != nil {
			return errors.Wrap(txErr, "creating course")
		}
		return errors.Wrap(svc.repo.SetCourseStudents(ctx, c.ID, studentIDs, tx), "enrolling students")
	})
	if err != nil {
		return Course{}, err
	}
	c.StudentIDs = studentIDs
	return c, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}

	if uc.Code != nil && *uc.Code != c.Code {
		if err = svc.checkCode(ctx, c.SessionID, *uc.Code, c.ID); err != nil {
			return Course{}, err
		}
		c.Code = *uc.Code
	}
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.TeacherID != nil {
		if err = svc.checkTeacher(ctx, *uc.TeacherID); err != nil {
			return Course{}, err
		}
		c.TeacherID = *uc.TeacherID
	}

	c.UpdatedAt = now()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

func (svc *Service) SetStudents(ctx context.Context, id string, studentIDs []string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if studentIDs, err = svc.checkStudents(ctx, studentIDs); err != nil {
		return Course{}, err
	}
	if err = svc.repo.SetCourseStudents(ctx, c.ID, studentIDs); err != nil {
		return Course{}, errors.Wrap(err, "enrolling students")
	}

	c.StudentIDs = studentIDs
	c.UpdatedAt = now()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) checkCode(ctx context.Context, sessionID, code, excludedID string) error {
	exists, err := svc.repo.CourseCodeExists(ctx, sessionID, code, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking course code uniqueness")
	}
	if exists {
		return core.NewConflictError("course %s already exists in this session", code)
	}
	return nil
}

func (svc *Service) checkTeacher(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewArgumentError("teacher %q not found", id)
		}
		return errors.Wrap(err, "finding teacher")
	}
	if !usr.IsTeacher() || !usr.Active() {
		return core.NewArgumentError("user %q is not an active teacher", id)
	}
	return nil
}

// checkStudents returns the de-duplicated IDs once every one of them is an active student.
func (svc *Service) checkStudents(ctx context.Context, ids []string) ([]string, error) {
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" || core.ContainsString(unique, id) {
			continue
		}
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			if core.IsNotFound(err) {
				return nil, core.NewArgumentError("student %q not found", id)
			}
			return nil, errors.Wrap(err, "finding student")
		}
		if !usr.IsStudent() || !usr.Active() {
			return nil, core.NewArgumentError("user %q is not an active student", id)
		}
		unique = append(unique, id)
	}
	return unique, nil
}

func (svc *Service) CreateAssignment(ctx context.Context, courseID string, na NewAssignment) (Assignment, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return Assignment{}, err
	}
	if na.Weight == 0 {
		na.Weight = defaultWeight
	}

	tstamp := now()
	return svc.repo.CreateAssignment(ctx, Assignment{
		CourseID:    courseID,
		Title:       na.Title,
		Description: na.Description,
		DueDate:     core.UTCPtr(na.DueDate),
		MaxPoints:   na.MaxPoints,
		Weight:      na.Weight,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	})
}

func (svc *Service) QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryAssignments(ctx, courseID)
}

// GetAssignment fails with ErrAssignmentNotFound unless the assignment belongs to the course.
func (svc *Service) GetAssignment(ctx context.Context, courseID, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if a.CourseID != courseID {
		return Assignment{}, ErrAssignmentNotFound
	}
	return a, nil
}

func (svc *Service) UpdateAssignment(ctx context.Context, courseID, id string, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.GetAssignment(ctx, courseID, id)
	if err != nil {
		return Assignment{}, err
	}

	if ua.Title != nil {
		a.Title = *ua.Title
	}
	if ua.Description != nil {
		a.Description = *ua.Description
	}
	if ua.DueDate != nil {
		a.DueDate = core.UTCPtr(ua.DueDate)
	}
	if ua.Weight != nil {
		a.Weight = *ua.Weight
	}
	if ua.MaxPoints != nil && *ua.MaxPoints != a.MaxPoints {
		grades, err := svc.repo.QueryGrades(ctx, courseID)
		if err != nil {
			return Assignment{}, errors.Wrap(err, "querying grades")
		}
		for _, g := range grades {
			if g.AssignmentID == a.ID && g.Points > *ua.MaxPoints {
				return Assignment{}, core.NewArgumentError("max points below an existing grade (%v)", g.Points)
			}
		}
		a.MaxPoints = *ua.MaxPoints
	}

	a.UpdatedAt = now()
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *Service) DeleteAssignment(ctx context.Context, courseID, id string) error {
	if _, err := svc.GetAssignment(ctx, courseID, id); err != nil {
		return err
	}
	return svc.repo.DeleteAssignment(ctx, id)
}

// RecordGrade grades an enrolled student, overwriting any previous grade.
func (svc *Service) RecordGrade(ctx context.Context, courseID, assignmentID string, ng NewGrade) (Grade, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Grade{}, err
	}
	a, err := svc.GetAssignment(ctx, courseID, assignmentID)
	if err != nil {
		return Grade{}, err
	}
	if !c.HasStudent(ng.StudentID) {
		return Grade{}, core.NewArgumentError("student %q is not enrolled in %s", ng.StudentID, c.Code)
	}
	if ng.Points < 0 || ng.Points > a.MaxPoints {
		return Grade{}, core.NewArgumentError("points must be between 0 and %v", a.MaxPoints)
	}

	return svc.repo.UpsertGrade(ctx, Grade{
		AssignmentID: a.ID,
		StudentID:    ng.StudentID,
		Points:       ng.Points,
		Feedback:     ng.Feedback,
		GradedAt:     now(),
	})
}

func (svc *Service) Gradebook(ctx context.Context, courseID string) (Gradebook, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Gradebook{}, err
	}
	assignments, err := svc.repo.QueryAssignments(ctx, courseID)
	if err != nil {
		return Gradebook{}, errors.Wrap(err, "querying assignments")
	}
	grades, err := svc.repo.QueryGrades(ctx, courseID)
	if err != nil {
		return Gradebook{}, errors.Wrap(err, "querying grades")
	}

	students := make([]user.User, 0, len(c.StudentIDs))
	for _, id := range c.StudentIDs {
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return Gradebook{}, errors.Wrap(err, "finding student")
		}
		students = append(students, usr)
	}
	return BuildGradebook(c, assignments, grades, students), nil
}

// ExportCSV renders the gradebook as CSV along with a download file name.
func (svc *Service) ExportCSV(ctx context.Context, courseID string) (string, []byte, error) {
	gb, err := svc.Gradebook(ctx, courseID)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if err = gb.WriteCSV(&buf); err != nil {
		return "", nil, errors.Wrap(err, "writing csv")
	}
	return fmt.Sprintf("%s-gradebook.csv", gb.Course.Code), buf.Bytes(), nil
}

// ArchiveGradebook stores the CSV export under `gradebooks/<session>/<code>-<timestamp>.csv`
// and returns a temporary download link.
func (svc *Service) ArchiveGradebook(ctx context.Context, courseID string) (Archive, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Archive{}, err
	}
	sess, err := svc.sessions.GetByID(ctx, c.SessionID)
	if err != nil {
		return Archive{}, errors.Wrap(err, "finding session")
	}
	_, content, err := svc.ExportCSV(ctx, courseID)
	if err != nil {
		return Archive{}, err
	}

	tstamp := now()
	key := ArchiveKey(sess, c, tstamp)
	if err = svc.files.Put(ctx, key, bytes.NewReader(content), int64(len(content)), "text/csv"); err != nil {
		return Archive{}, errors.Wrap(err, "storing gradebook")
	}
	url, err := svc.files.URL(ctx, key, svc.presignTTL)
	if err != nil {
		return Archive{}, errors.Wrap(err, "presigning gradebook url")
	}

	evt := Archived{CourseID: c.ID, Key: key, At: tstamp}
	if err = svc.events.Publish(ctx, core.SubjectGradebookArchived, evt); err != nil {
		svc.logger.Warn(fmt.Sprintf("publishing %s: %v", core.SubjectGradebookArchived, err), err)
	}
	return Archive{Key: key, URL: url, ExpiresAt: tstamp.Add(svc.presignTTL)}, nil
}

func ArchiveKey(sess session.Session, c Course, at time.Time) string {
	slug := strings.ToLower(fmt.Sprintf("%s-%d", sess.Name, sess.Year))
	return fmt.Sprintf("gradebooks/%s/%s-%s.csv", slug, strings.ToLower(c.Code), at.UTC().Format("20060102T150405Z"))
}
