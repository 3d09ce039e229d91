package echoapi

import (
	"net/http"
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
	"github.com/campusreg/registrar/core/enrollment"
)

var errAcctNotFoundInCtx = errors.New("account object not found in echo.Context")

type accountApi struct {
	svc        account.ServiceInterface
	enrSvc     enrollment.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerAccountAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc account.ServiceInterface,
	enrSvc enrollment.ServiceInterface,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := accountApi{
		svc:        svc,
		enrSvc:     enrSvc,
		validate:   validate,
		translator: translator,
	}

	ag := g.Group("/accounts")

	// un-authed endpoints
	// TODO: rate limit `/register` & `/login`
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)

	// logout skips the revocation check so logging out twice stays a no-op
	ag.POST("/logout", api.logout, jwt)

	// authed endpoints
	authed := ag.Group("", jwt, revocationMiddleware())
	authed.POST("/token-refresh", api.refreshToken)
	authed.GET("", api.query, adminMiddleware())
	authed.DELETE("", api.destroyMultiple, adminMiddleware())
	authed.GET("/roles", api.queryRoles, adminMiddleware())

	// detail endpoints
	dg := authed.Group("/:id", ctxAccountOrAdminMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())

	// student dashboard
	sg := g.Group("/students", jwt, revocationMiddleware())
	sg.GET("/:id/courses", api.dashboard, ctxAccountOrAdminMiddleware(api.svc))
}

// Handlers

func (api *accountApi) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	acct, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering account")
	}
	return ctx.JSON(http.StatusCreated, acct)
}

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := authenticate(ctx, data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// logout invalidates the presented token for its remaining lifetime.
// Logging out twice is a no-op success.
func (api *accountApi) logout(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	revokedTokens.Revoke(claims)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Logged out."})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *accountApi) query(ctx echo.Context) error {
	filter := new(account.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []account.Account{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	accts, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	if accts == nil {
		accts = []account.Account{}
	}
	return ctx.JSON(http.StatusOK, accts)
}

func (api *accountApi) retrieve(ctx echo.Context) error {
	acct, ok := ctx.Get("object").(account.Account)
	if !ok {
		return errors.Wrap(errAcctNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountApi) update(ctx echo.Context) error {
	acct, ok := ctx.Get("object").(account.Account)
	if !ok {
		return errors.Wrap(errAcctNotFoundInCtx, "retrieving object from context")
	}

	var data account.UpdateAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAccount")
	}

	ctxAcct, err := getContextAccount(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	if !ctxAcct.IsAdmin() {
		// `IsActive` and `Email` can only be changed by admin
		if data.IsActive != nil || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(acct, api.validate, api.svc); err != nil {
		return err
	}

	acct, err = api.svc.Update(ctx.Request().Context(), acct.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	return ctx.JSON(http.StatusOK, acct)
}

func (api *accountApi) destroy(ctx echo.Context) error {
	acct, ok := ctx.Get("object").(account.Account)
	if !ok {
		return errors.Wrap(errAcctNotFoundInCtx, "retrieving object from context")
	}

	// ctxAccount cannot delete themselves
	ctxAcct, err := getContextAccount(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	if acct.ID == ctxAcct.ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), acct.ID); err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// ctxAccount cannot delete themselves
	ctxAcct, err := getContextAccount(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, ctxAcct.ID); i < len(query.IDs) {
		if match := query.IDs[i]; ctxAcct.ID == match {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting accounts")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, account.Roles)
}

// dashboard lists the courses the student is enrolled in, with grades.
func (api *accountApi) dashboard(ctx echo.Context) error {
	acct, ok := ctx.Get("object").(account.Account)
	if !ok {
		return errors.Wrap(errAcctNotFoundInCtx, "retrieving object from context")
	}

	enrs, err := api.enrSvc.ListByStudent(ctx.Request().Context(), acct.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments by student")
	}
	if enrs == nil {
		enrs = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}
