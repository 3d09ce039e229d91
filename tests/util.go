package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
	"github.com/campusreg/registrar/core/course"
	"github.com/campusreg/registrar/core/enrollment"
)

// NewConfig returns the test configuration; no file or env lookup.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:            true,
		TestMode:         true,
		Env:              "TEST",
		Build:            "test",
		AppName:          "Registrar",
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: "noreply@localhost",
		Server: core.ServerConfig{
			Host:                      "localhost",
			Port:                      8000,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           5 * time.Second,
		},
		Registry: core.RegistryConfig{
			TeacherEmailSuffix: "@eduteacher.com",
			AdminEmailSuffix:   "@admin.com",
			DefaultGrade:       100.0,
		},
	}
}

func CreateAccount(
	t *testing.T,
	repo account.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acct := account.Account{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	acct.SetActive(isActive)
	if pwd != "" {
		if err := acct.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acct, err := repo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acct
}

// CreateLegacyAccount stores the password as plaintext, the way rows imported
// from the old registration system look before their first login.
func CreateLegacyAccount(
	t *testing.T,
	repo account.Repository,
	name, email, pwd, role string,
) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	acct := account.Account{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: []byte(pwd),
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	acct.SetActive(true)
	acct, err := repo.CreateAccount(context.Background(), acct)
	if err != nil {
		t.Fatalf("CreateLegacyAccount() failed: %v", err)
	}
	return acct
}

func CreateCourse(
	t *testing.T,
	repo course.Repository,
	name, tm string,
	capacity int,
	teacherID string,
) course.Course {
	t.Helper()

	tstamp := time.Now().UTC()
	crs := course.Course{
		Name:      name,
		Time:      tm,
		Capacity:  capacity,
		TeacherID: teacherID,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	crs, err := repo.CreateCourse(context.Background(), crs)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateEnrollment(
	t *testing.T,
	repo enrollment.Repository,
	studentID, courseID string,
	grade float64,
) enrollment.Enrollment {
	t.Helper()

	tstamp := time.Now().UTC()
	enr := enrollment.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Grade:     grade,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	enr, err := repo.CreateEnrollment(context.Background(), enr)
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}
