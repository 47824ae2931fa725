package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/session"
	"github.com/trezcool/scholar/core/user"
)

type (
	dashboardApi struct {
		users    user.ServiceInterface
		sessions session.ServiceInterface
		courses  course.ServiceInterface
	}

	Dashboard struct {
		Counts         user.RoleCounts `json:"counts"`
		CurrentSession *session.View   `json:"current_session"`
		NextSession    *session.View   `json:"next_session"`
		Courses        []course.Course `json:"courses,omitempty"` // the user's courses in the current session
	}
)

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := dashboardApi{users: deps.UserSvc, sessions: deps.SessionSvc, courses: deps.CourseSvc}
	g.GET("/dashboard", api.retrieve, jwt, activeUserMiddleware(deps.UserSvc))
}

func (api *dashboardApi) retrieve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	var dash Dashboard
	if dash.Counts, err = api.users.CountByRole(reqCtx); err != nil {
		return errors.Wrap(err, "counting users")
	}

	now := sessionNow()
	cur, err := api.sessions.GetCurrent(reqCtx)
	if err != nil {
		return errors.Wrap(err, "getting current session")
	}
	if cur != nil {
		v := cur.View(now)
		dash.CurrentSession = &v
	}
	next, err := api.sessions.GetNext(reqCtx)
	if err != nil {
		return errors.Wrap(err, "getting next session")
	}
	if next != nil {
		v := next.View(now)
		dash.NextSession = &v
	}

	if cur != nil && (ctxUsr.IsTeacher() || ctxUsr.IsStudent()) {
		filter := &course.QueryFilter{SessionID: cur.ID}
		if ctxUsr.IsTeacher() {
			filter.TeacherID = ctxUsr.ID
		} else {
			filter.StudentID = ctxUsr.ID
		}
		if dash.Courses, err = api.courses.Query(reqCtx, filter, nil); err != nil {
			return errors.Wrap(err, "querying courses")
		}
	}
	return ctx.JSON(http.StatusOK, dash)
}
