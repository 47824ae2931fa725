package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
)

const (
	courseColumns = `c.id, c.code, c.title, c.description, c.session_id, c.teacher_id, c.created_at, c.updated_at,
		COALESCE((SELECT array_agg(cs.student_id::text ORDER BY cs.student_id) FROM course_student cs
			WHERE cs.course_id = c.id), '{}') AS student_ids`
	assignmentColumns = `id, course_id, title, description, due_date, max_points, weight, created_at, updated_at`
)

var courseOrderings = map[string]string{
	"code":       "c.code",
	"title":      "c.title",
	"created_at": "c.created_at",
	"updated_at": "c.updated_at",
}

type (
	courseRow struct {
		ID          string         `db:"id"`
		Code        string         `db:"code"`
		Title       string         `db:"title"`
		Description null.String    `db:"description"`
		SessionID   string         `db:"session_id"`
		TeacherID   null.String    `db:"teacher_id"`
		StudentIDs  pq.StringArray `db:"student_ids"`
		CreatedAt   time.Time      `db:"created_at"`
		UpdatedAt   time.Time      `db:"updated_at"`
	}

	assignmentRow struct {
		ID          string      `db:"id"`
		CourseID    string      `db:"course_id"`
		Title       string      `db:"title"`
		Description null.String `db:"description"`
		DueDate     null.Time   `db:"due_date"`
		MaxPoints   float64     `db:"max_points"`
		Weight      float64     `db:"weight"`
		CreatedAt   time.Time   `db:"created_at"`
		UpdatedAt   time.Time   `db:"updated_at"`
	}

	gradeRow struct {
		AssignmentID string      `db:"assignment_id"`
		StudentID    string      `db:"student_id"`
		Points       float64     `db:"points"`
		Feedback     null.String `db:"feedback"`
		GradedAt     time.Time   `db:"graded_at"`
	}
)

func toCourseRow(c course.Course) courseRow {
	return courseRow{
		ID:          c.ID,
		Code:        c.Code,
		Title:       c.Title,
		Description: null.NewString(c.Description, c.Description != ""),
		SessionID:   c.SessionID,
		TeacherID:   null.NewString(c.TeacherID, c.TeacherID != ""),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (r courseRow) course() course.Course {
	studentIDs := []string(r.StudentIDs)
	if studentIDs == nil {
		studentIDs = []string{}
	}
	return course.Course{
		ID:          r.ID,
		Code:        r.Code,
		Title:       r.Title,
		Description: r.Description.String,
		SessionID:   r.SessionID,
		TeacherID:   r.TeacherID.String,
		StudentIDs:  studentIDs,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func toAssignmentRow(a course.Assignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		CourseID:    a.CourseID,
		Title:       a.Title,
		Description: null.NewString(a.Description, a.Description != ""),
		DueDate:     null.TimeFromPtr(core.UTCPtr(a.DueDate)),
		MaxPoints:   a.MaxPoints,
		Weight:      a.Weight,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func (r assignmentRow) assignment() course.Assignment {
	return course.Assignment{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		Description: r.Description.String,
		DueDate:     core.UTCPtr(r.DueDate.Ptr()),
		MaxPoints:   r.MaxPoints,
		Weight:      r.Weight,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	base
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{base{exec: exec}}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	c.ID = uuid.New().String()
	c.StudentIDs = []string{}
	q := `INSERT INTO course (id, code, title, description, session_id, teacher_id, created_at, updated_at)
		VALUES (:id, :code, :title, :description, :session_id, :teacher_id, :created_at, :updated_at)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, toCourseRow(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.SessionID != "" {
			where = append(where, "c.session_id::text = "+arg(filter.SessionID))
		}
		if filter.TeacherID != "" {
			where = append(where, "c.teacher_id::text = "+arg(filter.TeacherID))
		}
		if filter.StudentID != "" {
			where = append(where, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM course_student cs WHERE cs.course_id = c.id AND cs.student_id::text = %s)", arg(filter.StudentID)))
		}
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			where = append(where, fmt.Sprintf("(c.code ILIKE %[1]s OR c.title ILIKE %[1]s)", p))
		}
	}

	q := `SELECT ` + courseColumns + ` FROM course c`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderBy(ordering, courseOrderings, "c.created_at ASC, c.id ASC")

	var rows []courseRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	var rows []courseRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, `SELECT `+courseColumns+` FROM course c WHERE c.id = $1`, id); err != nil {
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	if len(rows) == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return rows[0].course(), nil
}

func (repo courseRepository) CourseCodeExists(ctx context.Context, sessionID, code, excludedID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM course WHERE session_id::text = $1 AND code = $2 AND id::text <> $3)`
	err := repo.getExec(exec).QueryRowContext(ctx, q, sessionID, code, excludedID).Scan(&exists)
	return exists, errors.Wrap(err, "checking course code")
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	q := `UPDATE course SET code = :code, title = :title, description = :description, teacher_id = :teacher_id,
		updated_at = :updated_at WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, toCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if err = mustAffect(res, course.ErrNotFound); err != nil {
		return course.Course{}, err
	}
	return repo.GetCourse(ctx, c.ID, exec...)
}

func (repo courseRepository) SetCourseStudents(ctx context.Context, courseID string, studentIDs []string, exec ...core.DBExecutor) error {
	return inTx(ctx, repo.getExec(exec), func(tx core.DBExecutor) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM course_student WHERE course_id = $1`, courseID); err != nil {
			return errors.Wrap(err, "clearing course students")
		}
		if len(studentIDs) == 0 {
			return nil
		}
		q := `INSERT INTO course_student (course_id, student_id) SELECT $1, unnest($2::uuid[])`
		_, err := tx.ExecContext(ctx, q, courseID, pq.Array(studentIDs))
		return errors.Wrap(err, "inserting course students")
	})
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return course.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return mustAffect(res, course.ErrNotFound)
}

func (repo courseRepository) CreateAssignment(ctx context.Context, a course.Assignment, exec ...core.DBExecutor) (course.Assignment, error) {
	a.ID = uuid.New().String()
	q := `INSERT INTO assignment (` + assignmentColumns + `) VALUES (:id, :course_id, :title, :description, :due_date,
		:max_points, :weight, :created_at, :updated_at)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, toAssignmentRow(a)); err != nil {
		return course.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo courseRepository) QueryAssignments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Assignment, error) {
	var rows []assignmentRow
	q := `SELECT ` + assignmentColumns + ` FROM assignment WHERE course_id::text = $1
		ORDER BY due_date ASC NULLS LAST, created_at ASC, id ASC`
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]course.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.assignment())
	}
	return assignments, nil
}

func (repo courseRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (course.Assignment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	var rows []assignmentRow
	if err := selectRows(ctx, repo.getExec(exec), &rows, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id); err != nil {
		return course.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	if len(rows) == 0 {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	return rows[0].assignment(), nil
}

func (repo courseRepository) UpdateAssignment(ctx context.Context, a course.Assignment, exec ...core.DBExecutor) (course.Assignment, error) {
	q := `UPDATE assignment SET title = :title, description = :description, due_date = :due_date,
		max_points = :max_points, weight = :weight, updated_at = :updated_at WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, toAssignmentRow(a))
	if err != nil {
		return course.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if err = mustAffect(res, course.ErrAssignmentNotFound); err != nil {
		return course.Assignment{}, err
	}
	return a, nil
}

func (repo courseRepository) DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return course.ErrAssignmentNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return mustAffect(res, course.ErrAssignmentNotFound)
}

func (repo courseRepository) UpsertGrade(ctx context.Context, g course.Grade, exec ...core.DBExecutor) (course.Grade, error) {
	row := gradeRow{
		AssignmentID: g.AssignmentID,
		StudentID:    g.StudentID,
		Points:       g.Points,
		Feedback:     null.NewString(g.Feedback, g.Feedback != ""),
		GradedAt:     g.GradedAt.UTC(),
	}
	q := `INSERT INTO grade (assignment_id, student_id, points, feedback, graded_at)
		VALUES (:assignment_id, :student_id, :points, :feedback, :graded_at)
		ON CONFLICT (assignment_id, student_id)
		DO UPDATE SET points = EXCLUDED.points, feedback = EXCLUDED.feedback, graded_at = EXCLUDED.graded_at`
	if _, err := namedExec(ctx, repo.getExec(exec), q, row); err != nil {
		return course.Grade{}, errors.Wrap(err, "upserting grade")
	}
	return g, nil
}

func (repo courseRepository) QueryGrades(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Grade, error) {
	var rows []gradeRow
	q := `SELECT g.assignment_id, g.student_id, g.points, g.feedback, g.graded_at
		FROM grade g JOIN assignment a ON a.id = g.assignment_id
		WHERE a.course_id::text = $1 ORDER BY g.graded_at ASC`
	if err := selectRows(ctx, repo.getExec(exec), &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	grades := make([]course.Grade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, course.Grade{
			AssignmentID: r.AssignmentID,
			StudentID:    r.StudentID,
			Points:       r.Points,
			Feedback:     r.Feedback.String,
			GradedAt:     r.GradedAt.UTC(),
		})
	}
	return grades, nil
}
