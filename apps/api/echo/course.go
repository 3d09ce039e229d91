package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
	"github.com/campusreg/registrar/core/course"
	"github.com/campusreg/registrar/core/enrollment"
)

var errCrsNotFoundInCtx = errors.New("course object not found in echo.Context")

type courseApi struct {
	svc      course.ServiceInterface
	acctSvc  account.ServiceInterface
	enrSvc   enrollment.ServiceInterface
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc course.ServiceInterface,
	acctSvc account.ServiceInterface,
	enrSvc enrollment.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:      svc,
		acctSvc:  acctSvc,
		enrSvc:   enrSvc,
		validate: validate,
	}

	cg := g.Group("/courses", jwt, revocationMiddleware())
	cg.POST("", api.create, roleMiddleware(account.RoleTeacher))
	cg.GET("", api.query)

	// detail endpoints
	dg := cg.Group("/:id", api.courseObjectMiddleware())
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, api.ownerMiddleware())
	dg.DELETE("", api.destroy, api.ownerMiddleware())
	dg.POST("/enroll", api.enroll, studentMiddleware())
	dg.POST("/drop", api.drop, studentMiddleware())
	dg.GET("/grades", api.roster, api.ownerMiddleware())
	dg.PUT("/grades", api.setGrades, api.ownerMiddleware())
}

// courseObjectMiddleware loads the course under :id into the context; 404 when
// it does not exist.
func (api *courseApi) courseObjectMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			crs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == course.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding course by ID")
			}
			ctx.Set("courseObject", crs)
			return next(ctx)
		}
	}
}

// ownerMiddleware only lets the owning teacher or an admin through.
func (api *courseApi) ownerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && claims.Role == account.RoleAdmin {
				return next(ctx)
			}

			crs, ok := ctx.Get("courseObject").(course.Course)
			if !ok {
				return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
			}
			if claims.IsTeacher && claims.Role == account.RoleTeacher && crs.TeacherID == claims.Subject {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// studentMiddleware only lets student accounts through; admins do not pass as
// they cannot hold enrollments of their own.
func studentMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsStudent && claims.Role == account.RoleStudent {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	// a teacher owns the courses they create; an admin must name the owning
	// teacher since a course cannot belong to an admin
	teacherID := claims.Subject
	if claims.IsAdmin && claims.Role == account.RoleAdmin {
		errTeacherID := core.NewValidationError(nil, core.FieldError{
			Field: "teacher_id", Error: "must reference a teacher account",
		})
		if data.TeacherID == "" {
			return errTeacherID
		}
		tchr, err := api.acctSvc.GetByID(ctx.Request().Context(), data.TeacherID)
		if err != nil {
			if errors.Cause(err) == account.ErrNotFound {
				return errTeacherID
			}
			return errors.Wrap(err, "finding teacher by ID")
		}
		if !tchr.IsTeacher() {
			return errTeacherID
		}
		teacherID = tchr.ID
	}

	crs, err := api.svc.Create(ctx.Request().Context(), teacherID, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(crs, api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Update(ctx.Request().Context(), crs, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Delete(ctx.Request().Context(), crs.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	enr, err := api.enrSvc.Add(ctx.Request().Context(), claims.Subject, crs.ID)
	if err != nil {
		return errors.Wrap(err, "enrolling in course")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) drop(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.enrSvc.Drop(ctx.Request().Context(), claims.Subject, crs.ID); err != nil {
		return errors.Wrap(err, "dropping course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// roster lists the course's enrolled students with their grades.
func (api *courseApi) roster(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	enrs, err := api.enrSvc.ListByCourse(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments by course")
	}
	if enrs == nil {
		enrs = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *courseApi) setGrades(ctx echo.Context) error {
	crs, ok := ctx.Get("courseObject").(course.Course)
	if !ok {
		return errors.Wrap(errCrsNotFoundInCtx, "retrieving object from context")
	}

	var data GradesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradesRequest")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	enrs, err := api.enrSvc.SetGrades(ctx.Request().Context(), crs.ID, data.Grades)
	if err != nil {
		return errors.Wrap(err, "setting grades")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

type GradesRequest struct {
	Grades []enrollment.GradeUpdate `json:"grades" validate:"required,min=1,dive"`
}
