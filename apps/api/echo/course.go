package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core/course"
	"github.com/trezcool/scholar/core/user"
)

var (
	courseKey = "course"

	errCourseNotFoundInCtx = errors.New("course not found in echo.Context")
)

type courseApi struct {
	svc      course.ServiceInterface
	users    user.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{svc: deps.CourseSvc, users: deps.UserSvc, validate: deps.Validate}

	cg := g.Group("/courses", jwt, activeUserMiddleware(deps.UserSvc))
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())

	// detail endpoints: visible to admins, the course's teacher and its students
	dg := cg.Group("/:id", api.courseMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, adminMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.PUT("/students", api.setStudents, adminMiddleware())

	dg.GET("/assignments", api.queryAssignments)
	dg.GET("/assignments/:aid", api.retrieveAssignment)
	dg.POST("/assignments", api.createAssignment, api.manageMiddleware)
	dg.PUT("/assignments/:aid", api.updateAssignment, api.manageMiddleware)
	dg.DELETE("/assignments/:aid", api.destroyAssignment, api.manageMiddleware)
	dg.POST("/assignments/:aid/grades", api.recordGrade, api.manageMiddleware)

	dg.GET("/gradebook", api.gradebook)
	dg.GET("/gradebook.csv", api.exportGradebook, api.manageMiddleware)
	dg.POST("/gradebook/archive", api.archiveGradebook, api.manageMiddleware)
}

// courseMiddleware loads the Course identified by the `id` path param, if the context User may see it.
func (api *courseApi) courseMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := getContextUser(ctx, api.users)
		if err != nil {
			return err
		}
		c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return err
		}
		if !c.CanView(ctxUsr) {
			return errHttpNotFound
		}
		ctx.Set(courseKey, c)
		return next(ctx)
	}
}

// manageMiddleware only lets admins and the course's teacher in.
func (api *courseApi) manageMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		c, ok := ctx.Get(courseKey).(course.Course)
		if !ok {
			return errCourseNotFoundInCtx
		}
		ctxUsr, err := getContextUser(ctx, api.users)
		if err != nil {
			return err
		}
		if !c.CanManage(ctxUsr) {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func ctxCourse(ctx echo.Context) (course.Course, error) {
	c, ok := ctx.Get(courseKey).(course.Course)
	if !ok {
		return course.Course{}, errCourseNotFoundInCtx
	}
	return c, nil
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	// non-admins only see their own courses
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	if !ctxUsr.IsAdmin() {
		switch {
		case ctxUsr.IsTeacher():
			filter.TeacherID = ctxUsr.ID
		case ctxUsr.IsStudent():
			filter.StudentID = ctxUsr.ID
		default:
			return ctx.JSON(http.StatusOK, []course.Course{})
		}
	}

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := ctxCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	c, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) setStudents(ctx echo.Context) error {
	var data StudentsRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	c, err := api.svc.SetStudents(ctx.Request().Context(), ctx.Param("id"), data.StudentIDs)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) queryAssignments(ctx echo.Context) error {
	assignments, err := api.svc.QueryAssignments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *courseApi) retrieveAssignment(ctx echo.Context) error {
	a, err := api.svc.GetAssignment(ctx.Request().Context(), ctx.Param("id"), ctx.Param("aid"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) createAssignment(ctx echo.Context) error {
	var data course.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	a, err := api.svc.CreateAssignment(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *courseApi) updateAssignment(ctx echo.Context) error {
	var data course.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	a, err := api.svc.UpdateAssignment(ctx.Request().Context(), ctx.Param("id"), ctx.Param("aid"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *courseApi) destroyAssignment(ctx echo.Context) error {
	if err := api.svc.DeleteAssignment(ctx.Request().Context(), ctx.Param("id"), ctx.Param("aid")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) recordGrade(ctx echo.Context) error {
	var data course.NewGrade
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	g, err := api.svc.RecordGrade(ctx.Request().Context(), ctx.Param("id"), ctx.Param("aid"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, g)
}

// gradebook serves the whole gradebook to managers, and their own row to students.
func (api *courseApi) gradebook(ctx echo.Context) error {
	c, err := ctxCourse(ctx)
	if err != nil {
		return err
	}
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	gb, err := api.svc.Gradebook(ctx.Request().Context(), c.ID)
	if err != nil {
		return err
	}
	if !c.CanManage(ctxUsr) {
		row, ok := gb.Row(ctxUsr.ID)
		if !ok {
			return errHttpNotFound
		}
		return ctx.JSON(http.StatusOK, echo.Map{"course": gb.Course, "assignments": gb.Assignments, "row": row})
	}
	return ctx.JSON(http.StatusOK, gb)
}

func (api *courseApi) exportGradebook(ctx echo.Context) error {
	filename, content, err := api.svc.ExportCSV(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", content)
}

func (api *courseApi) archiveGradebook(ctx echo.Context) error {
	archive, err := api.svc.ArchiveGradebook(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, archive)
}
