package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
)

var (
	// errors
	ErrAlreadyEnrolled = errors.New("student is already enrolled in this course")
	ErrCourseFull      = errors.New("course is full")
	ErrNotEnrolled     = errors.New("student is not enrolled in this course")
	ErrInvalidGrade    = errors.New("grade must be between 0 and 100")
)

type (
	Repository interface {
		// CreateEnrollment atomically re-checks the (student, course)
		// uniqueness and the course capacity before inserting; the checks and
		// the insert execute as one unit even under concurrent callers.
		// Fails with ErrAlreadyEnrolled or ErrCourseFull.
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		// GetEnrollment fails with ErrNotEnrolled when no record matches the pair.
		GetEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
		ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]Enrollment, error)
		ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]Enrollment, error)
		UpdateEnrollmentGrade(ctx context.Context, id string, grade float64) (Enrollment, error)
		DeleteEnrollment(ctx context.Context, id string) error
		CountEnrollments(ctx context.Context) (int, error)
		CountEnrollmentsByCourse(ctx context.Context, courseID string) (int, error)
	}

	ServiceInterface interface {
		Add(ctx context.Context, studentID, courseID string) (Enrollment, error)
		Drop(ctx context.Context, studentID, courseID string) error
		SetGrade(ctx context.Context, courseID, studentID string, grade float64) (Enrollment, error)
		SetGrades(ctx context.Context, courseID string, updates []GradeUpdate) ([]Enrollment, error)
		ListByStudent(ctx context.Context, studentID string) ([]Enrollment, error)
		ListByCourse(ctx context.Context, courseID string) ([]Enrollment, error)
		Count(ctx context.Context) (int, error)
	}

	service struct {
		conf *core.Config
		repo Repository
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(conf *core.Config, repo Repository) *service {
	return &service{
		conf: conf,
		repo: repo,
	}
}

// Add enrolls the student in the course with the default grade.
// Duplicate pairs are rejected with ErrAlreadyEnrolled (not a no-op success);
// a course at capacity rejects with ErrCourseFull. The capacity check and the
// insert are a single atomic unit inside the repository.
func (svc *service) Add(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	if _, err := svc.repo.GetEnrollment(ctx, studentID, courseID); err == nil {
		return Enrollment{}, ErrAlreadyEnrolled
	} else if errors.Cause(err) != ErrNotEnrolled {
		return Enrollment{}, errors.Wrap(err, "checking existing enrollment")
	}

	now := time.Now().UTC()
	enr := Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Grade:     svc.conf.Registry.DefaultGrade,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

// Drop removes the student's enrollment. A drop is a hard delete; a later Add
// for the same pair starts over with the default grade.
func (svc *service) Drop(ctx context.Context, studentID, courseID string) error {
	enr, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteEnrollment(ctx, enr.ID)
}

func (svc *service) SetGrade(ctx context.Context, courseID, studentID string, grade float64) (Enrollment, error) {
	if !GradeInRange(grade) {
		return Enrollment{}, ErrInvalidGrade
	}
	enr, err := svc.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	return svc.repo.UpdateEnrollmentGrade(ctx, enr.ID, grade)
}

// SetGrades applies a bulk grade edit for one course. The whole batch is
// resolved before the first write so a bad entry, out-of-range or
// unenrolled, rejects the batch with no partial update.
func (svc *service) SetGrades(ctx context.Context, courseID string, updates []GradeUpdate) ([]Enrollment, error) {
	enrIDs := make([]string, 0, len(updates))
	for _, upd := range updates {
		if !GradeInRange(upd.Grade) {
			return nil, ErrInvalidGrade
		}
		enr, err := svc.repo.GetEnrollment(ctx, upd.StudentID, courseID)
		if err != nil {
			return nil, err
		}
		enrIDs = append(enrIDs, enr.ID)
	}

	enrs := make([]Enrollment, 0, len(updates))
	for i, upd := range updates {
		enr, err := svc.repo.UpdateEnrollmentGrade(ctx, enrIDs[i], upd.Grade)
		if err != nil {
			return nil, err
		}
		enrs = append(enrs, enr)
	}
	return enrs, nil
}

func (svc *service) ListByStudent(ctx context.Context, studentID string) ([]Enrollment, error) {
	return svc.repo.ListEnrollmentsByStudent(ctx, studentID)
}

func (svc *service) ListByCourse(ctx context.Context, courseID string) ([]Enrollment, error) {
	return svc.repo.ListEnrollmentsByCourse(ctx, courseID)
}

func (svc *service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountEnrollments(ctx)
}
