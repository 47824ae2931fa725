package tests

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/scholar/core"
	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/user"
	testutil "github.com/trezcool/scholar/tests"
)

func Test_courseApi(t *testing.T) {
	app := setup(t)
	testutil.FreezeTime(t, &course.NowFunc, time.Date(2024, time.March, 1, 10, 30, 0, 0, time.UTC))

	spring := testutil.CreateSession(t, app.sessionRepo, "Spring", 2024, testutil.Date(2024, time.January, 15), testutil.Date(2024, time.May, 15))
	admin := app.createUser(t, "Admin", "admin_01", "", user.RoleAdmin)
	teacher := app.createUser(t, "Teacher", "teacher_01", "", user.RoleTeacher)
	alice := app.createUser(t, "Alice", "alice_01", "", user.RoleStudent)
	bob := app.createUser(t, "Bob", "bob_01", "", user.RoleStudent)
	outsider := app.createUser(t, "Outsider", "outsider_01", "", user.RoleStudent)

	adminToken, teacherToken := app.token(t, admin), app.token(t, teacher)
	aliceToken, outsiderToken := app.token(t, alice), app.token(t, outsider)

	var cs101 course.Course
	t.Run("create", func(t *testing.T) {
		body := marshalObj(t, course.NewCourse{
			Code: "CS101", Title: "Intro to CS", SessionID: spring.ID, TeacherID: teacher.ID,
			StudentIDs: []string{alice.ID, bob.ID, alice.ID},
		})
		rec := app.do(http.MethodPost, "/api/courses", adminToken, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &cs101)
		assert.Equal(t, []string{alice.ID, bob.ID}, cs101.StudentIDs)
	})

	base := "/api/courses/" + cs101.ID
	var essay course.Assignment

	tests := []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/api/courses", token: adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"code": "this field is required", "title": "this field is required", "session_id": "this field is required"}),
		},
		{
			name: "duplicate code", method: http.MethodPost, path: "/api/courses", token: adminToken,
			body:     marshalObj(t, course.NewCourse{Code: "CS101", Title: "Again", SessionID: spring.ID}),
			wantCode: http.StatusConflict,
		},
		{
			name: "teachers cannot create", method: http.MethodPost, path: "/api/courses", token: teacherToken,
			body: marshalObj(t, course.NewCourse{Code: "CS102", Title: "Data", SessionID: spring.ID}), wantCode: http.StatusForbidden,
		},
		{name: "students see their courses", path: "/api/courses", token: aliceToken, wantCode: http.StatusOK, wantData: marshalObj(t, []course.Course{cs101})},
		{name: "others see none", path: "/api/courses", token: outsiderToken, wantCode: http.StatusOK, wantData: []byte("[]")},
		{name: "hidden from outsiders", path: base, token: outsiderToken, wantCode: http.StatusNotFound},
		{name: "visible to students", path: base, token: aliceToken, wantCode: http.StatusOK, wantData: marshalObj(t, cs101)},
		{
			name: "students cannot add assignments", method: http.MethodPost, path: base + "/assignments", token: aliceToken,
			body: marshalObj(t, course.NewAssignment{Title: "Essay", MaxPoints: 20}), wantCode: http.StatusForbidden,
		},
		{
			name: "max points required", method: http.MethodPost, path: base + "/assignments", token: teacherToken,
			body: marshalObj(t, course.NewAssignment{Title: "Essay"}), wantCode: http.StatusBadRequest,
		},
		{name: "students cannot export", path: base + "/gradebook.csv", token: aliceToken, wantCode: http.StatusForbidden},
	}
	runHTTPTests(t, app, tests)

	t.Run("teacher adds an assignment", func(t *testing.T) {
		rec := app.do(http.MethodPost, base+"/assignments", teacherToken, marshalObj(t, course.NewAssignment{Title: "Essay", MaxPoints: 20}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &essay)
		assert.Equal(t, 1.0, essay.Weight)
	})

	t.Run("grades", func(t *testing.T) {
		path := base + "/assignments/" + essay.ID + "/grades"
		rec := app.do(http.MethodPost, path, teacherToken, marshalObj(t, course.NewGrade{StudentID: alice.ID, Points: 17}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPost, path, teacherToken, marshalObj(t, course.NewGrade{StudentID: alice.ID, Points: 25}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPost, path, teacherToken, marshalObj(t, course.NewGrade{StudentID: outsider.ID, Points: 5}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("students only see their row", func(t *testing.T) {
		rec := app.do(http.MethodGet, base+"/gradebook", aliceToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Row course.GradebookRow `json:"row"`
		}
		decode(t, rec, &resp)
		assert.Equal(t, alice.ID, resp.Row.StudentID)
		assert.Equal(t, "B", resp.Row.Letter)
	})

	t.Run("teacher sees the whole gradebook", func(t *testing.T) {
		rec := app.do(http.MethodGet, base+"/gradebook", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var gb course.Gradebook
		decode(t, rec, &gb)
		require.Len(t, gb.Rows, 2)
		require.NotNil(t, gb.ClassAverage)
		assert.InDelta(t, 85.0, *gb.ClassAverage, 0.001)
	})

	t.Run("csv export", func(t *testing.T) {
		rec := app.do(http.MethodGet, base+"/gradebook.csv", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, `attachment; filename="CS101-gradebook.csv"`, rec.Header().Get("Content-Disposition"))
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
		assert.Equal(t, "Student,Email,Essay,Percentage,Letter\n"+
			"Alice,alice_01@test.cd,17,85.00,B\n"+
			"Bob,bob_01@test.cd,,,-\n", rec.Body.String())
	})

	t.Run("archive", func(t *testing.T) {
		rec := app.do(http.MethodPost, base+"/gradebook/archive", teacherToken)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var archive course.Archive
		decode(t, rec, &archive)
		assert.Equal(t, "gradebooks/spring-2024/cs101-20240301T103000Z.csv", archive.Key)

		stored, ok := app.files.Get(archive.Key)
		require.True(t, ok)
		assert.Contains(t, string(stored), "Alice,alice_01@test.cd,17,85.00,B")
		assert.Len(t, app.events.Events(core.SubjectGradebookArchived), 1)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, base, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(http.MethodGet, base, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
