package enrollment

import "time"

// Grade bounds, inclusive.
const (
	MinGrade = 0.0
	MaxGrade = 100.0
)

// Enrollment is the join record linking one student to one course.
// The (StudentID, CourseID) pair is unique while the record exists; dropping
// a course deletes the record outright.
type Enrollment struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Grade     float64   `json:"grade"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC

	// denormalized fields, only set on joined queries
	CourseName   string `json:"course_name,omitempty"`
	CourseTime   string `json:"course_time,omitempty"`
	StudentName  string `json:"student_name,omitempty"`
	StudentEmail string `json:"student_email,omitempty"`
}

func GradeInRange(grade float64) bool {
	return grade >= MinGrade && grade <= MaxGrade
}

// GradeUpdate is one entry of a bulk grade edit for a course.
type GradeUpdate struct {
	StudentID string  `json:"student_id" validate:"required"`
	Grade     float64 `json:"grade"`
}
