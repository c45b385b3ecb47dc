package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/farafmb/klubhaus/core"
	"github.com/farafmb/klubhaus/core/modification"
	"github.com/farafmb/klubhaus/core/user"
)

const allStates = "all"

type modificationApi struct {
	usrApi   *userApi
	svc      *modification.Service
	validate *validator.Validate
}

func registerModificationAPI(g *echo.Group, auth *authenticator, usrApi *userApi, deps ServerDeps) {
	api := &modificationApi{
		usrApi:   usrApi,
		svc:      deps.ModSvc,
		validate: deps.Validate,
	}

	mg := g.Group("/modifications", auth.middleware(), activeUserMiddleware(usrApi.svc))
	mg.GET("", api.query, adminMiddleware())
	mg.GET("/fields", api.queryFields)
	mg.POST("/notify-admins", api.notifyAdmins, adminMiddleware())
	mg.GET("/:id", api.retrieve)
	mg.POST("/:id/decision", api.decide)
}

// Handlers

// query lists the pending Modifications, or those in `?state=` (`all` for every state).
func (api *modificationApi) query(ctx echo.Context) error {
	var (
		mods []modification.Modification
		err  error
	)
	switch param := ctx.QueryParam("state"); param {
	case "":
		mods, err = api.svc.QueryPending(ctx.Request().Context())
	case allStates:
		mods, err = api.svc.Query(ctx.Request().Context(), modification.QueryFilter{})
	default:
		state, pErr := modification.ParseState(param)
		if pErr != nil {
			return core.NewValidationError(pErr, core.FieldError{Field: "state", Error: pErr.Error()})
		}
		mods, err = api.svc.Query(ctx.Request().Context(), modification.QueryFilter{State: &state})
	}
	if err != nil {
		return errors.Wrap(err, "querying modifications")
	}
	if mods == nil {
		mods = []modification.Modification{}
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *modificationApi) queryFields(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Fields())
}

// retrieve shows a Modification to its subject or to an admin.
func (api *modificationApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrApi.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	mod, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding modification")
	}
	if err = canView(actor, mod); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mod)
}

func (api *modificationApi) decide(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrApi.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = canDecide(actor); err != nil {
		return err
	}

	var data modification.DecisionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DecisionRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	decision, err := modification.ParseDecision(data.Decision)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "decision", Error: err.Error()})
	}

	mod, err := api.svc.Decide(ctx.Request().Context(), ctx.Param("id"), decision, actor, data.Note)
	if err != nil {
		return errors.Wrap(err, "deciding modification")
	}
	return ctx.JSON(http.StatusOK, mod)
}

// notifyAdmins sends the pending digest on demand; failed deliveries are reported, not raised.
func (api *modificationApi) notifyAdmins(ctx echo.Context) error {
	res, err := api.svc.NotifyAdmins(ctx.Request().Context())
	if err != nil {
		var derrs core.DeliveryErrors
		if !errors.As(err, &derrs) {
			return errors.Wrap(err, "notifying admins")
		}
		api.usrApi.logger.Warn("notifying admins", err)
	}
	return ctx.JSON(http.StatusOK, res)
}

func canView(actor user.User, mod modification.Modification) error {
	if actor.IsAdmin() || actor.ID == mod.UserID {
		return nil
	}
	return core.ErrPermissionDenied
}

func canDecide(actor user.User) error {
	if actor.IsAdmin() {
		return nil
	}
	return core.ErrPermissionDenied
}
