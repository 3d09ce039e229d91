package dummydb

import (
	"sync"

	"github.com/campusreg/registrar/core/account"
	"github.com/campusreg/registrar/core/course"
	"github.com/campusreg/registrar/core/enrollment"
)

type (
	DB struct {
		account    *accountTable
		course     *courseTable
		enrollment *enrollmentTable
	}

	accountTable struct {
		sync.RWMutex
		table map[string]*account.Account
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*enrollment.Enrollment
	}
)

func Open() *DB {
	return &DB{
		account:    &accountTable{table: make(map[string]*account.Account)},
		course:     &courseTable{table: make(map[string]*course.Course)},
		enrollment: &enrollmentTable{table: make(map[string]*enrollment.Enrollment)},
	}
}
