package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core/account"
	"github.com/campusreg/registrar/core/course"
	"github.com/campusreg/registrar/core/enrollment"
)

type metricsApi struct {
	acctSvc account.ServiceInterface
	crsSvc  course.ServiceInterface
	enrSvc  enrollment.ServiceInterface
}

func registerMetricsAPI(
	g *echo.Group,
	acctSvc account.ServiceInterface,
	crsSvc course.ServiceInterface,
	enrSvc enrollment.ServiceInterface,
) {
	api := metricsApi{
		acctSvc: acctSvc,
		crsSvc:  crsSvc,
		enrSvc:  enrSvc,
	}
	g.GET("/metrics", api.retrieve)
}

type MetricsResponse struct {
	Students    int `json:"students"`
	Teachers    int `json:"teachers"`
	Admins      int `json:"admins"`
	Courses     int `json:"courses"`
	Enrollments int `json:"enrollments"`
}

func (api *metricsApi) retrieve(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	var res MetricsResponse
	var err error

	if res.Students, err = api.acctSvc.Count(rctx, account.RoleStudent); err != nil {
		return errors.Wrap(err, "counting students")
	}
	if res.Teachers, err = api.acctSvc.Count(rctx, account.RoleTeacher); err != nil {
		return errors.Wrap(err, "counting teachers")
	}
	if res.Admins, err = api.acctSvc.Count(rctx, account.RoleAdmin); err != nil {
		return errors.Wrap(err, "counting admins")
	}
	if res.Courses, err = api.crsSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting courses")
	}
	if res.Enrollments, err = api.enrSvc.Count(rctx); err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	return ctx.JSON(http.StatusOK, res)
}
