package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) RunInTx(ctx context.Context, fn core.TxFunc) error {
	return repo.db.RunInTx(ctx, fn)
}

var courseOrderings = map[string]compareFunc[course.Course]{
	"code":       func(a, b course.Course) int { return cmpString(a.Code, b.Code) },
	"title":      func(a, b course.Course) int { return cmpString(a.Title, b.Title) },
	"created_at": func(a, b course.Course) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b course.Course) int { return cmpTime(a.UpdatedAt, b.UpdatedAt) },
}

// deleteCourseRows removes a course along with its assignments and grades; the write lock must be held.
func deleteCourseRows(db *DB, courseID string) {
	delete(db.courses, courseID)
	for aid, r := range db.assignments {
		if r.obj.CourseID == courseID {
			deleteAssignmentRows(db, aid)
		}
	}
}

func deleteAssignmentRows(db *DB, assignmentID string) {
	delete(db.assignments, assignmentID)
	for key := range db.grades {
		if key.assignmentID == assignmentID {
			delete(db.grades, key)
		}
	}
}

func copyStrings(s []string) []string {
	c := make([]string, len(s))
	copy(c, s)
	return c
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	c.ID = uuid.New().String()
	c.StudentIDs = []string{}
	repo.db.courses[c.ID] = row[course.Course]{seq: repo.db.nextSeq(), obj: c}
	return c, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	all := values(repo.db.courses)
	repo.db.mu.RUnlock()

	courses := make([]course.Course, 0, len(all))
	for _, c := range all {
		if filter != nil {
			if filter.SessionID != "" && c.SessionID != filter.SessionID {
				continue
			}
			if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
				continue
			}
			if filter.StudentID != "" && !c.HasStudent(filter.StudentID) {
				continue
			}
			if filter.Search != "" && !(containsFold(c.Code, filter.Search) || containsFold(c.Title, filter.Search)) {
				continue
			}
		}
		c.StudentIDs = copyStrings(c.StudentIDs)
		courses = append(courses, c)
	}
	orderBy(courses, ordering, courseOrderings, nil)
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	r, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	c := r.obj
	c.StudentIDs = copyStrings(c.StudentIDs)
	return c, nil
}

func (repo *courseRepository) CourseCodeExists(_ context.Context, sessionID, code, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for id, r := range repo.db.courses {
		if id != excludedID && r.obj.SessionID == sessionID && r.obj.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.courses[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	c.StudentIDs = r.obj.StudentIDs
	c.CreatedAt = r.obj.CreatedAt
	r.obj = c
	repo.db.courses[c.ID] = r
	c.StudentIDs = copyStrings(c.StudentIDs)
	return c, nil
}

func (repo *courseRepository) SetCourseStudents(_ context.Context, courseID string, studentIDs []string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	r.obj.StudentIDs = copyStrings(studentIDs)
	repo.db.courses[courseID] = r
	return nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrNotFound
	}
	deleteCourseRows(repo.db, id)
	return nil
}

func (repo *courseRepository) CreateAssignment(_ context.Context, a course.Assignment, _ ...core.DBExecutor) (course.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[a.CourseID]; !ok {
		return course.Assignment{}, course.ErrNotFound
	}
	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = row[course.Assignment]{seq: repo.db.nextSeq(), obj: a}
	return a, nil
}

func (repo *courseRepository) QueryAssignments(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Assignment, error) {
	repo.db.mu.RLock()
	all := values(repo.db.assignments)
	repo.db.mu.RUnlock()

	assignments := make([]course.Assignment, 0)
	for _, a := range all {
		if a.CourseID == courseID {
			assignments = append(assignments, a)
		}
	}
	sortByDueDate(assignments)
	return assignments, nil
}

func (repo *courseRepository) GetAssignment(_ context.Context, id string, _ ...core.DBExecutor) (course.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.assignments[id]; ok {
		return r.obj, nil
	}
	return course.Assignment{}, course.ErrAssignmentNotFound
}

func (repo *courseRepository) UpdateAssignment(_ context.Context, a course.Assignment, _ ...core.DBExecutor) (course.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.assignments[a.ID]
	if !ok {
		return course.Assignment{}, course.ErrAssignmentNotFound
	}
	a.CourseID = r.obj.CourseID
	a.CreatedAt = r.obj.CreatedAt
	r.obj = a
	repo.db.assignments[a.ID] = r
	return a, nil
}

func (repo *courseRepository) DeleteAssignment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return course.ErrAssignmentNotFound
	}
	deleteAssignmentRows(repo.db, id)
	return nil
}

func (repo *courseRepository) UpsertGrade(_ context.Context, g course.Grade, _ ...core.DBExecutor) (course.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.assignments[g.AssignmentID]; !ok {
		return course.Grade{}, course.ErrAssignmentNotFound
	}
	key := gradeKey{assignmentID: g.AssignmentID, studentID: g.StudentID}
	r, ok := repo.db.grades[key]
	if !ok {
		r.seq = repo.db.nextSeq()
	}
	r.obj = g
	repo.db.grades[key] = r
	return g, nil
}

func (repo *courseRepository) QueryGrades(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grades := make([]course.Grade, 0)
	for _, g := range values(repo.db.grades) {
		if r, ok := repo.db.assignments[g.AssignmentID]; ok && r.obj.CourseID == courseID {
			grades = append(grades, g)
		}
	}
	return grades, nil
}

// sortByDueDate orders dated assignments first, keeping creation order among ties.
func sortByDueDate(assignments []course.Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		di, dj := assignments[i].DueDate, assignments[j].DueDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})
}
