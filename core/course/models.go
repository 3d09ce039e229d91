package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/campusreg/registrar/core"
)

type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Time      string    `json:"time"` // free-form schedule, e.g. "MWF 9:00-9:50 AM"
	Capacity  int       `json:"capacity"`
	TeacherID string    `json:"teacher_id"` // owning teacher; immutable after creation
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
// TeacherID names the owning teacher when an admin creates the course; a
// teacher always owns the courses they create and leaves it empty.
type NewCourse struct {
	Name      string `json:"name" validate:"required"`
	Time      string `json:"time" validate:"required"`
	Capacity  int    `json:"capacity" validate:"required,gte=1"`
	TeacherID string `json:"teacher_id"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Time = core.CleanString(nc.Time)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing
// Course. The owning teacher cannot be changed.
type UpdateCourse struct {
	Name     string `json:"name"`
	Time     string `json:"time"`
	Capacity int    `json:"capacity" validate:"omitempty,gte=1"`
}

func (uc *UpdateCourse) Validate(origCrs Course, validate *validator.Validate) error {
	name := core.CleanString(uc.Name)
	if name != "" {
		uc.Name = name
	} else {
		uc.Name = origCrs.Name
	}

	tm := core.CleanString(uc.Time)
	if tm != "" {
		uc.Time = tm
	} else {
		uc.Time = origCrs.Time
	}

	if uc.Capacity == 0 {
		uc.Capacity = origCrs.Capacity
	}
	return validate.Struct(uc)
}

type GetFilter struct {
	ID   string
	Name string
}

type QueryFilter struct {
	Search    string `query:"search"`
	TeacherID string `query:"teacher_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.TeacherID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
