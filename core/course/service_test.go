package course_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
	emailsvc "github.com/trezcool/scholar/services/email"
	eventsvc "github.com/trezcool/scholar/services/events"
	exportsvc "github.com/trezcool/scholar/services/exports"
	inmemdb "github.com/trezcool/scholar/storage/database/inmem"
	testutil "github.com/trezcool/scholar/tests"
)

type fixture struct {
	svc     *course.Service
	files   *exportsvc.MemoryStore
	events  *eventsvc.Recorder
	spring  session.Session
	fall    session.Session
	teacher user.User
	alice   user.User
	bob     user.User
	admin   user.User
}

// newFixture wraps the course repository with `wrap`, if given.
func newFixture(t *testing.T, wrap ...func(course.Repository) course.Repository) fixture {
	db := inmemdb.New()
	logger := testutil.NewLogger()
	conf := core.NewTestConfig()

	userRepo := inmemdb.NewUserRepository(db)
	sessRepo := inmemdb.NewSessionRepository(db)
	users := user.NewServiceMock(userRepo, emailsvc.NewConsoleServiceMock(logger, conf))

	f := fixture{
		files:  exportsvc.NewMemoryStore(),
		events: &eventsvc.Recorder{},
		spring: testutil.CreateSession(t, sessRepo, "Spring", 2024, testutil.Date(2024, 1, 8), testutil.Date(2024, 5, 31)),
		fall:   testutil.CreateSession(t, sessRepo, "Fall", 2024, testutil.Date(2024, 9, 2), testutil.Date(2024, 12, 20)),
	}
	f.teacher = testutil.CreateUser(t, userRepo, "Grace Hopper", "ghopper", "grace@test.cd", "", []string{user.RoleTeacher}, true)
	f.alice = testutil.CreateUser(t, userRepo, "Alice", "alice_s", "alice@test.cd", "", []string{user.RoleStudent}, true)
	f.bob = testutil.CreateUser(t, userRepo, "Bob", "bob_stu", "bob@test.cd", "", []string{user.RoleStudent}, true)
	f.admin = testutil.CreateUser(t, userRepo, "Admin", "admin_1", "admin@test.cd", "", []string{user.RoleAdmin}, true)

	sessions := session.NewService(sessRepo, f.events, logger)
	var repo course.Repository = inmemdb.NewCourseRepository(db)
	if len(wrap) > 0 {
		repo = wrap[0](repo)
	}
	f.svc = course.NewService(repo, users, sessions, f.files, f.events, logger, conf)
	testutil.FreezeTime(t, &course.NowFunc, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC))
	return f
}

func (f fixture) createCourse(t *testing.T, studentIDs ...string) course.Course {
	t.Helper()
	c, err := f.svc.Create(context.Background(), course.NewCourse{
		Code:       "CS101",
		Title:      "Intro to Computing",
		SessionID:  f.spring.ID,
		TeacherID:  f.teacher.ID,
		StudentIDs: studentIDs,
	})
	require.NoError(t, err)
	return c
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := f.createCourse(t, f.alice.ID, f.bob.ID, f.alice.ID)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, []string{f.alice.ID, f.bob.ID}, c.StudentIDs, "students are de-duplicated")

	got, err := f.svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.alice.ID, f.bob.ID}, got.StudentIDs)

	tests := []struct {
		name    string
		nc      course.NewCourse
		checkFn func(error) bool
	}{
		{
			name:    "duplicate code in session",
			nc:      course.NewCourse{Code: "CS101", Title: "Again", SessionID: f.spring.ID},
			checkFn: core.IsConflictError,
		},
		{
			name:    "unknown session",
			nc:      course.NewCourse{Code: "CS102", Title: "Lost", SessionID: "nope"},
			checkFn: core.IsArgumentError,
		},
		{
			name:    "teacher is not a teacher",
			nc:      course.NewCourse{Code: "CS102", Title: "Wrong", SessionID: f.spring.ID, TeacherID: f.alice.ID},
			checkFn: core.IsArgumentError,
		},
		{
			name:    "student is not a student",
			nc:      course.NewCourse{Code: "CS102", Title: "Wrong", SessionID: f.spring.ID, StudentIDs: []string{f.teacher.ID}},
			checkFn: core.IsArgumentError,
		},
		{
			name:    "unknown student",
			nc:      course.NewCourse{Code: "CS102", Title: "Wrong", SessionID: f.spring.ID, StudentIDs: []string{"ghost"}},
			checkFn: core.IsArgumentError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.nc)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), "unexpected error: %v", err)
		})
	}

	t.Run("same code in another session", func(t *testing.T) {
		_, err := f.svc.Create(ctx, course.NewCourse{Code: "CS101", Title: "Intro", SessionID: f.fall.ID})
		assert.NoError(t, err)
	})
}

// failingEnrolment cannot store a course's students.
type failingEnrolment struct {
	course.Repository
}

func (r *failingEnrolment) SetCourseStudents(context.Context, string, []string, ...core.DBExecutor) error {
	return errors.New("store unavailable")
}

func TestService_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	var repo course.Repository
	f := newFixture(t, func(r course.Repository) course.Repository {
		repo = r
		return &failingEnrolment{Repository: r}
	})

	_, err := f.svc.Create(ctx, course.NewCourse{Code: "CS101", Title: "Intro", SessionID: f.spring.ID, StudentIDs: []string{f.alice.ID}})
	require.EqualError(t, err, "enrolling students: store unavailable")

	courses, err := repo.QueryCourses(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, courses, "no course without its students")
	exists, err := repo.CourseCodeExists(ctx, f.spring.ID, "CS101", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cs101 := f.createCourse(t, f.alice.ID)
	ma101, err := f.svc.Create(ctx, course.NewCourse{Code: "MA101", Title: "Calculus", SessionID: f.fall.ID, StudentIDs: []string{f.bob.ID}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter *course.QueryFilter
		want   []string
	}{
		{name: "all, by code", want: []string{cs101.ID, ma101.ID}},
		{name: "by session", filter: &course.QueryFilter{SessionID: f.fall.ID}, want: []string{ma101.ID}},
		{name: "by teacher", filter: &course.QueryFilter{TeacherID: f.teacher.ID}, want: []string{cs101.ID}},
		{name: "by student", filter: &course.QueryFilter{StudentID: f.bob.ID}, want: []string{ma101.ID}},
		{name: "search", filter: &course.QueryFilter{Search: "calc"}, want: []string{ma101.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses, err := f.svc.Query(ctx, tt.filter, nil)
			require.NoError(t, err)
			ids := make([]string, 0, len(courses))
			for _, c := range courses {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := f.createCourse(t)
	other, err := f.svc.Create(ctx, course.NewCourse{Code: "CS102", Title: "Data Structures", SessionID: f.spring.ID})
	require.NoError(t, err)

	code := "CS102"
	_, err = f.svc.Update(ctx, c.ID, course.UpdateCourse{Code: &code})
	assert.True(t, core.IsConflictError(err))

	title := "Computing 101"
	unassigned := ""
	got, err := f.svc.Update(ctx, c.ID, course.UpdateCourse{Title: &title, TeacherID: &unassigned})
	require.NoError(t, err)
	assert.Equal(t, "Computing 101", got.Title)
	assert.Equal(t, "CS101", got.Code)
	assert.Empty(t, got.TeacherID)

	got, err = f.svc.SetStudents(ctx, other.ID, []string{f.bob.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{f.bob.ID}, got.StudentIDs)

	_, err = f.svc.SetStudents(ctx, other.ID, []string{f.admin.ID})
	assert.True(t, core.IsArgumentError(err))
}

func TestService_RecordGrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := f.createCourse(t, f.alice.ID)
	essay, err := f.svc.CreateAssignment(ctx, c.ID, course.NewAssignment{Title: "Essay", MaxPoints: 20})
	require.NoError(t, err)
	assert.Equal(t, 1.0, essay.Weight, "default weight")

	other, err := f.svc.Create(ctx, course.NewCourse{Code: "MA101", Title: "Calculus", SessionID: f.spring.ID, StudentIDs: []string{f.alice.ID}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		courseID string
		ng       course.NewGrade
		checkFn  func(error) bool
	}{
		{name: "not enrolled", courseID: c.ID, ng: course.NewGrade{StudentID: f.bob.ID, Points: 10}, checkFn: core.IsArgumentError},
		{name: "above max", courseID: c.ID, ng: course.NewGrade{StudentID: f.alice.ID, Points: 21}, checkFn: core.IsArgumentError},
		{name: "negative", courseID: c.ID, ng: course.NewGrade{StudentID: f.alice.ID, Points: -1}, checkFn: core.IsArgumentError},
		{name: "assignment of another course", courseID: other.ID, ng: course.NewGrade{StudentID: f.alice.ID, Points: 1}, checkFn: core.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordGrade(ctx, tt.courseID, essay.ID, tt.ng)
			require.Error(t, err)
			assert.True(t, tt.checkFn(err), "unexpected error: %v", err)
		})
	}

	t.Run("regrading overwrites", func(t *testing.T) {
		_, err := f.svc.RecordGrade(ctx, c.ID, essay.ID, course.NewGrade{StudentID: f.alice.ID, Points: 12})
		require.NoError(t, err)
		g, err := f.svc.RecordGrade(ctx, c.ID, essay.ID, course.NewGrade{StudentID: f.alice.ID, Points: 18, Feedback: "better"})
		require.NoError(t, err)
		assert.Equal(t, 18.0, g.Points)

		gb, err := f.svc.Gradebook(ctx, c.ID)
		require.NoError(t, err)
		row, ok := gb.Row(f.alice.ID)
		require.True(t, ok)
		require.NotNil(t, row.Percentage)
		assert.Equal(t, 90.0, *row.Percentage)
	})

	t.Run("max points below a grade", func(t *testing.T) {
		max := 15.0
		_, err := f.svc.UpdateAssignment(ctx, c.ID, essay.ID, course.UpdateAssignment{MaxPoints: &max})
		assert.True(t, core.IsArgumentError(err))

		max = 25
		a, err := f.svc.UpdateAssignment(ctx, c.ID, essay.ID, course.UpdateAssignment{MaxPoints: &max})
		require.NoError(t, err)
		assert.Equal(t, 25.0, a.MaxPoints)
	})
}

func TestService_Assignments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := f.createCourse(t)
	due := testutil.Date(2024, 4, 1)
	undated, err := f.svc.CreateAssignment(ctx, c.ID, course.NewAssignment{Title: "Project", MaxPoints: 100})
	require.NoError(t, err)
	dated, err := f.svc.CreateAssignment(ctx, c.ID, course.NewAssignment{Title: "Quiz", MaxPoints: 10, DueDate: &due})
	require.NoError(t, err)

	list, err := f.svc.QueryAssignments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dated.ID, list[0].ID, "dated assignments first")
	assert.Equal(t, undated.ID, list[1].ID)

	require.NoError(t, f.svc.DeleteAssignment(ctx, c.ID, undated.ID))
	_, err = f.svc.GetAssignment(ctx, c.ID, undated.ID)
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, f.svc.Delete(ctx, c.ID))
	_, err = f.svc.GetAssignment(ctx, c.ID, dated.ID)
	assert.True(t, core.IsNotFound(err), "assignments go with their course")
	_, err = f.svc.QueryAssignments(ctx, c.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_ExportAndArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c := f.createCourse(t, f.bob.ID, f.alice.ID)
	essay, err := f.svc.CreateAssignment(ctx, c.ID, course.NewAssignment{Title: "Essay", MaxPoints: 20})
	require.NoError(t, err)
	_, err = f.svc.RecordGrade(ctx, c.ID, essay.ID, course.NewGrade{StudentID: f.alice.ID, Points: 17})
	require.NoError(t, err)

	filename, content, err := f.svc.ExportCSV(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "CS101-gradebook.csv", filename)
	want := "Student,Email,Essay,Percentage,Letter\n" +
		"Alice,alice@test.cd,17,85.00,B\n" +
		"Bob,bob@test.cd,,,-\n"
	assert.Equal(t, want, string(content))

	archive, err := f.svc.ArchiveGradebook(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "gradebooks/spring-2024/cs101-20240301T103000Z.csv", archive.Key)
	assert.True(t, strings.HasPrefix(archive.URL, "memory://"+archive.Key))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 45, 0, 0, time.UTC), archive.ExpiresAt)

	stored, ok := f.files.Get(archive.Key)
	require.True(t, ok)
	assert.Equal(t, want, string(stored))

	evts := f.events.Events(core.SubjectGradebookArchived)
	require.Len(t, evts, 1)
	assert.Equal(t, course.Archived{CourseID: c.ID, Key: archive.Key, At: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)}, evts[0].Payload)

	_, err = f.svc.ArchiveGradebook(ctx, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestCourse_Permissions(t *testing.T) {
	f := newFixture(t)
	c := f.createCourse(t, f.alice.ID)

	tests := []struct {
		name      string
		usr       user.User
		canManage bool
		canView   bool
	}{
		{name: "admin", usr: f.admin, canManage: true, canView: true},
		{name: "teacher", usr: f.teacher, canManage: true, canView: true},
		{name: "enrolled student", usr: f.alice, canView: true},
		{name: "other student", usr: f.bob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canManage, c.CanManage(tt.usr))
			assert.Equal(t, tt.canView, c.CanView(tt.usr))
		})
	}
}
