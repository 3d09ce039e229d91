package dummydb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) query() []course.Course {
	courses := make([]course.Course, 0, len(repo.db.course.table))
	for _, c := range repo.db.course.table {
		courses = append(courses, *c)
	}
	return courses
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	crs.ID = uuid.New().String()
	repo.db.course.table[crs.ID] = &crs
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	if filter.ID != "" {
		if crs, ok := repo.db.course.table[filter.ID]; ok {
			return *crs, nil
		}
		return course.Course{}, course.ErrNotFound
	}
	for _, crs := range repo.query() {
		if crs.Name == filter.Name {
			return crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	courses := repo.query()

	if filter != nil {
		if filter.Search != "" {
			var filtered []course.Course
			for _, c := range courses {
				if strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
					filtered = append(filtered, c)
				}
			}
			courses = filtered
		}
		if courses != nil && filter.TeacherID != "" {
			var filtered []course.Course
			for _, c := range courses {
				if c.TeacherID == filter.TeacherID {
					filtered = append(filtered, c)
				}
			}
			courses = filtered
		}
	}

	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	// only save set fields; TeacherID is immutable
	origCrs, ok := repo.db.course.table[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	if crs.Name != "" {
		origCrs.Name = crs.Name
	}
	if crs.Time != "" {
		origCrs.Time = crs.Time
	}
	if crs.Capacity > 0 {
		origCrs.Capacity = crs.Capacity
	}
	origCrs.UpdatedAt = crs.UpdatedAt

	repo.db.course.table[crs.ID] = origCrs
	return *origCrs, nil
}

func (repo *courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) (int, error) {
	repo.db.enrollment.RLock()
	for _, id := range ids {
		for _, enr := range repo.db.enrollment.table {
			if enr.CourseID == id {
				repo.db.enrollment.RUnlock()
				return 0, course.ErrCourseProtected
			}
		}
	}
	repo.db.enrollment.RUnlock()

	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.course.table[id]; ok {
			delete(repo.db.course.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *courseRepository) CountCourses(ctx context.Context) (int, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()
	return len(repo.db.course.table), nil
}
