package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/course"
)

type dbCourse struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Time      string    `db:"time"`
	Capacity  int       `db:"capacity"`
	TeacherID string    `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (c dbCourse) unpack() course.Course {
	return course.Course{
		ID:        c.ID,
		Name:      c.Name,
		Time:      c.Time,
		Capacity:  c.Capacity,
		TeacherID: c.TeacherID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return course.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	crs.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course (id, name, "time", capacity, teacher_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		crs.ID, crs.Name, crs.Time, crs.Capacity, crs.TeacherID, crs.CreatedAt, crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	qb := psql.Select("*").From("course")
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return course.Course{}, course.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	} else {
		qb = qb.Where(sq.Eq{"name": filter.Name})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course query")
	}

	var crs dbCourse
	if err := repo.db.GetContext(ctx, &crs, query, args...); err != nil {
		return course.Course{}, repo.trapNoRowsErr(err, "finding course")
	}
	return crs.unpack(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	qb := psql.Select("*").From("course")

	if filter != nil {
		if filter.Search != "" {
			qb = qb.Where(sq.Expr("name ILIKE ?", "%"+filter.Search+"%"))
		}
		if filter.TeacherID != "" {
			qb = qb.Where(sq.Eq{"teacher_id": filter.TeacherID})
		}
	}
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building courses query")
	}

	var rows []dbCourse
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.unpack())
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	// only save set fields; teacher_id is immutable
	qb := psql.Update("course").Where(sq.Eq{"id": crs.ID}).Set("updated_at", crs.UpdatedAt)
	if crs.Name != "" {
		qb = qb.Set("name", crs.Name)
	}
	if crs.Time != "" {
		qb = qb.Set("time", crs.Time)
	}
	if crs.Capacity > 0 {
		qb = qb.Set("capacity", crs.Capacity)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building course update")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return repo.GetCourse(ctx, course.GetFilter{ID: crs.ID})
}

func (repo *courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) (int, error) {
	query, args, err := psql.Delete("course").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building course delete")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(errors.Cause(err)) {
			return 0, course.ErrCourseProtected
		}
		return 0, errors.Wrap(err, "deleting courses")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	return int(cnt), nil
}

func (repo *courseRepository) CountCourses(ctx context.Context) (int, error) {
	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, `SELECT COUNT(*) FROM course`); err != nil {
		return 0, errors.Wrap(err, "counting courses")
	}
	return cnt, nil
}
