package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campusreg/registrar/core/course"
	"github.com/campusreg/registrar/core/enrollment"
)

type dbEnrollment struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	CourseID  string    `db:"course_id"`
	Grade     float64   `db:"grade"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	// joined columns
	CourseName   null.String `db:"course_name"`
	CourseTime   null.String `db:"course_time"`
	StudentName  null.String `db:"student_name"`
	StudentEmail null.String `db:"student_email"`
}

func (e dbEnrollment) unpack() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:           e.ID,
		StudentID:    e.StudentID,
		CourseID:     e.CourseID,
		Grade:        e.Grade,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		CourseName:   e.CourseName.String,
		CourseTime:   e.CourseTime.String,
		StudentName:  e.StudentName.String,
		StudentEmail: e.StudentEmail.String,
	}
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var (
	_ enrollment.Repository    = (*enrollmentRepository)(nil) // interface compliance check
	_ course.EnrollmentCounter = (*enrollmentRepository)(nil)
)

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

// CreateEnrollment re-checks the pair uniqueness and the course capacity and
// inserts, all inside one transaction holding a row lock on the course; two
// concurrent adds against the last seat serialize on that lock so only one
// can commit. The unique (student_id, course_id) index backstops the
// duplicate check.
func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "beginning enrollment tx")
	}
	defer func() { _ = tx.Rollback() }()

	var capacity int
	err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM course WHERE id = $1 FOR UPDATE`, enr.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, course.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "locking course row")
	}

	var cnt int
	err = tx.GetContext(ctx, &cnt, `SELECT COUNT(*) FROM enrollment WHERE course_id = $1`, enr.CourseID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "counting enrollments")
	}
	if cnt >= capacity {
		return enrollment.Enrollment{}, enrollment.ErrCourseFull
	}

	enr.ID = uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO enrollment (id, student_id, course_id, grade, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		enr.ID, enr.StudentID, enr.CourseID, enr.Grade, enr.CreatedAt, enr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(errors.Cause(err)) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}

	if err := tx.Commit(); err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "committing enrollment tx")
	}
	return enr, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	var enr dbEnrollment
	err := repo.db.GetContext(ctx, &enr,
		`SELECT id, student_id, course_id, grade, created_at, updated_at
		 FROM enrollment WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "finding enrollment")
	}
	return enr.unpack(), nil
}

func (repo *enrollmentRepository) ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]enrollment.Enrollment, error) {
	var rows []dbEnrollment
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT e.id, e.student_id, e.course_id, e.grade, e.created_at, e.updated_at,
		        c.name AS course_name, c."time" AS course_time
		 FROM enrollment e
		 JOIN course c ON c.id = e.course_id
		 WHERE e.student_id = $1
		 ORDER BY c.name`,
		studentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments by student")
	}
	return unpackSlice(rows), nil
}

func (repo *enrollmentRepository) ListEnrollmentsByCourse(ctx context.Context, courseID string) ([]enrollment.Enrollment, error) {
	var rows []dbEnrollment
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT e.id, e.student_id, e.course_id, e.grade, e.created_at, e.updated_at,
		        a.name AS student_name, a.email AS student_email
		 FROM enrollment e
		 JOIN account a ON a.id = e.student_id
		 WHERE e.course_id = $1
		 ORDER BY a.name`,
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments by course")
	}
	return unpackSlice(rows), nil
}

func (repo *enrollmentRepository) UpdateEnrollmentGrade(ctx context.Context, id string, grade float64) (enrollment.Enrollment, error) {
	var enr dbEnrollment
	err := repo.db.GetContext(ctx, &enr,
		`UPDATE enrollment SET grade = $1, updated_at = $2 WHERE id = $3
		 RETURNING id, student_id, course_id, grade, created_at, updated_at`,
		grade, time.Now().UTC(), id,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "updating grade")
	}
	return enr.unpack(), nil
}

func (repo *enrollmentRepository) DeleteEnrollment(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM enrollment WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return nil
}

func (repo *enrollmentRepository) CountEnrollments(ctx context.Context) (int, error) {
	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, `SELECT COUNT(*) FROM enrollment`); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return cnt, nil
}

func (repo *enrollmentRepository) CountEnrollmentsByCourse(ctx context.Context, courseID string) (int, error) {
	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, `SELECT COUNT(*) FROM enrollment WHERE course_id = $1`, courseID); err != nil {
		return 0, errors.Wrap(err, "counting enrollments by course")
	}
	return cnt, nil
}

func unpackSlice(rows []dbEnrollment) []enrollment.Enrollment {
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.unpack())
	}
	return enrs
}
