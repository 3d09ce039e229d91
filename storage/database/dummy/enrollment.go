package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/campusreg/registrar/core/course"
	"github.com/campusreg/registrar/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var (
	_ enrollment.Repository    = (*enrollmentRepository)(nil) // interface compliance check
	_ course.EnrollmentCounter = (*enrollmentRepository)(nil)
)

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

// countByCourseLocked assumes the enrollment table lock is held.
func (repo *enrollmentRepository) countByCourseLocked(courseID string) int {
	var cnt int
	for _, enr := range repo.db.enrollment.table {
		if enr.CourseID == courseID {
			cnt++
		}
	}
	return cnt
}

// CreateEnrollment performs the duplicate and capacity checks and the insert
// under the enrollment table's write lock; concurrent calls serialize here the
// way the SQL implementation serializes on the course row lock.
func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.course.RLock()
	crs, ok := repo.db.course.table[enr.CourseID]
	if !ok {
		repo.db.course.RUnlock()
		return enrollment.Enrollment{}, course.ErrNotFound
	}
	capacity := crs.Capacity
	repo.db.course.RUnlock()

	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	for _, e := range repo.db.enrollment.table {
		if e.StudentID == enr.StudentID && e.CourseID == enr.CourseID {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
	}
	if repo.countByCourseLocked(enr.CourseID) >= capacity {
		return enrollment.Enrollment{}, enrollment.ErrCourseFull
	}

	enr.ID = uuid.New().String()
	repo.db.enrollment.table[enr.ID] = &enr
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	for _, enr := range repo.db.enrollment.table {
		if enr.StudentID == studentID && enr.CourseID == courseID {
			return *enr, nil
		}
	}
	return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
}

func (repo *enrollmentRepository) ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	enrs := make([]enrollment.Enrollment, 0)
	for _, enr := range repo.db.enrollment.table {
		if enr.StudentID == studentID {
			enrs = append(enrs, *enr)
		}
	}
	repo.db.enrollment.RUnlock()

	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	for i, enr := range enrs {
		if crs, ok := repo.db.course.table[enr.CourseID]; ok {
			enrs[i].CourseName = crs.Name
			enrs[i].CourseTime = crs.Time
		}
	}
	return enrs, nil
}

func (repo *enrollmentRepository) ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	enrs := make([]enrollment.Enrollment, 0)
	for _, enr := range repo.db.enrollment.table {
		if enr.CourseID == courseID {
			enrs = append(enrs, *enr)
		}
	}
	repo.db.enrollment.RUnlock()

	repo.db.account.RLock()
	defer repo.db.account.RUnlock()
	for i, enr := range enrs {
		if acct, ok := repo.db.account.table[enr.StudentID]; ok {
			enrs[i].StudentName = acct.Name
			enrs[i].StudentEmail = acct.Email
		}
	}
	return enrs, nil
}

func (repo *enrollmentRepository) UpdateEnrollmentGrade(ctx context.Context, id string, grade float64) (enrollment.Enrollment, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	enr, ok := repo.db.enrollment.table[id]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
	}
	enr.Grade = grade
	return *enr, nil
}

func (repo *enrollmentRepository) DeleteEnrollment(ctx context.Context, id string) error {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()
	delete(repo.db.enrollment.table, id)
	return nil
}

func (repo *enrollmentRepository) CountEnrollments(ctx context.Context) (int, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()
	return len(repo.db.enrollment.table), nil
}

func (repo *enrollmentRepository) CountEnrollmentsByCourse(ctx context.Context, courseID string) (int, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()
	return repo.countByCourseLocked(courseID), nil
}
