package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/scholar/core/registration"
	"github.com/trezcool/scholar/core/user"
)

type registrationApi struct {
	svc      registration.ServiceInterface
	users    user.ServiceInterface
	validate *validator.Validate
}

func registerRegistrationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := registrationApi{svc: deps.RegistrationSvc, users: deps.UserSvc, validate: deps.Validate}

	rg := g.Group("/registrations")
	ag := rg.Group("", jwt, activeUserMiddleware(deps.UserSvc), adminMiddleware())
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/approve", api.approve)
	ag.POST("/:id/reject", api.reject)

	// registered last: the authed group claims every method on its prefix
	rg.POST("", api.submit)
}

func (api *registrationApi) submit(ctx echo.Context) error {
	var data registration.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	req, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *registrationApi) query(ctx echo.Context) error {
	filter := new(registration.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	filter.Clean()

	reqs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying registration requests")
	}
	if reqs == nil {
		reqs = []registration.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *registrationApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *registrationApi) approve(ctx echo.Context) error {
	reviewer, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	req, err := api.svc.Approve(ctx.Request().Context(), ctx.Param("id"), reviewer)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *registrationApi) reject(ctx echo.Context) error {
	var data registration.Rejection
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	reviewer, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}
	req, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"), reviewer, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}
