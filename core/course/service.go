package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
)

var (
	// errors
	ErrNotFound         = errors.New("course not found")
	ErrCourseProtected  = errors.New("course still has enrollments; remove them first")
	errCapacityTooSmall = "capacity cannot drop below the current enrollment count"
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		GetCourse(ctx context.Context, filter GetFilter) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Name.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, crs Course) (Course, error)
		// DeleteCoursesByID fails with ErrCourseProtected while any of the
		// courses still has enrollments.
		DeleteCoursesByID(ctx context.Context, ids ...string) (int, error)
		CountCourses(ctx context.Context) (int, error)
	}

	// EnrollmentCounter reports how many active enrollments a course has;
	// satisfied by the enrollment repository.
	EnrollmentCounter interface {
		CountEnrollmentsByCourse(ctx context.Context, courseID string) (int, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, teacherID string, nc NewCourse) (Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, orig Course, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, ids ...string) error
		Count(ctx context.Context) (int, error)
	}

	service struct {
		repo     Repository
		enrolled EnrollmentCounter
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, enrolled EnrollmentCounter) *service {
	return &service{
		repo:     repo,
		enrolled: enrolled,
	}
}

func (svc *service) Create(ctx context.Context, teacherID string, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		Name:      nc.Name,
		Time:      nc.Time,
		Capacity:  nc.Capacity,
		TeacherID: teacherID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, GetFilter{ID: id})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, orig Course, uc UpdateCourse) (Course, error) {
	if uc.Capacity < orig.Capacity {
		cnt, err := svc.enrolled.CountEnrollmentsByCourse(ctx, orig.ID)
		if err != nil {
			return Course{}, errors.Wrap(err, "counting enrollments")
		}
		if uc.Capacity < cnt {
			return Course{}, core.NewValidationError(nil, core.FieldError{Field: "capacity", Error: errCapacityTooSmall})
		}
	}

	crs := Course{
		ID:        orig.ID,
		Name:      uc.Name,
		Time:      uc.Time,
		Capacity:  uc.Capacity,
		TeacherID: orig.TeacherID,
		UpdatedAt: time.Now().UTC(),
	}
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteCoursesByID(ctx, ids...)
	return err
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountCourses(ctx)
}
