package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core/session"
)

var (
	errNoCurrentSession = echo.NewHTTPError(http.StatusNotFound, "no current session")
	errNoNextSession    = echo.NewHTTPError(http.StatusNotFound, "no upcoming session")
)

type sessionApi struct {
	svc     session.ServiceInterface
	metrics *metrics
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps, m *metrics) {
	api := sessionApi{svc: deps.SessionSvc, metrics: m}

	sg := g.Group("/sessions", jwt, activeUserMiddleware(deps.UserSvc))
	sg.GET("", api.query)
	sg.GET("/current", api.current)
	sg.GET("/next", api.next)
	sg.GET("/:id", api.retrieve)

	sg.POST("", api.create, adminMiddleware())
	sg.POST("/reconcile", api.reconcile, adminMiddleware())
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.PATCH("/:id", api.update, adminMiddleware())
	sg.POST("/:id/set-current", api.setCurrent, adminMiddleware())
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

// sessionNow is the clock used for derived session fields.
func sessionNow() time.Time { return session.NowFunc().UTC() }

func (api *sessionApi) query(ctx echo.Context) error {
	filter := new(session.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	sessions, err := api.svc.QueryAll(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, session.Views(sessions, sessionNow()))
}

func (api *sessionApi) current(ctx echo.Context) error {
	sess, err := api.svc.GetCurrent(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting current session")
	}
	if sess == nil {
		return errNoCurrentSession
	}
	return ctx.JSON(http.StatusOK, sess.View(sessionNow()))
}

func (api *sessionApi) next(ctx echo.Context) error {
	sess, err := api.svc.GetNext(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting next session")
	}
	if sess == nil {
		return errNoNextSession
	}
	return ctx.JSON(http.StatusOK, sess.View(sessionNow()))
}

func (api *sessionApi) retrieve(ctx echo.Context) error {
	sess, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.View(sessionNow()))
}

func (api *sessionApi) create(ctx echo.Context) error {
	var data session.NewSession
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	sess, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess.View(sessionNow()))
}

func (api *sessionApi) update(ctx echo.Context) error {
	var data session.UpdateSession
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	sess, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.View(sessionNow()))
}

func (api *sessionApi) setCurrent(ctx echo.Context) error {
	sess, err := api.svc.SetCurrent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	api.metrics.currentSwitches.Inc()
	return ctx.JSON(http.StatusOK, sess.View(sessionNow()))
}

func (api *sessionApi) reconcile(ctx echo.Context) error {
	cur, err := api.svc.Reconcile(ctx.Request().Context())
	if err != nil {
		return err
	}
	api.metrics.reconciles.Inc()

	var view *session.View
	if cur != nil {
		v := cur.View(sessionNow())
		view = &v
	}
	return ctx.JSON(http.StatusOK, echo.Map{"current": view})
}

func (api *sessionApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
