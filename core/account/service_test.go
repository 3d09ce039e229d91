package account_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusreg/registrar/core/account"
	emailsvc "github.com/campusreg/registrar/services/email"
	dummydb "github.com/campusreg/registrar/storage/database/dummy"
	testutil "github.com/campusreg/registrar/tests"
)

func setup(t *testing.T) (account.ServiceInterface, account.Repository) {
	t.Helper()
	conf := testutil.NewConfig()
	repo := dummydb.NewAccountRepository(dummydb.Open())
	svc := account.NewService(conf, repo, emailsvc.NewConsoleServiceMock(conf))
	return svc, repo
}

func Test_service_Register(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		na       account.NewAccount
		wantRole string
		wantErr  error
	}{
		{
			name:     "plain email registers a student",
			na:       account.NewAccount{Name: "Stu", Email: "stu@test.cd", Password: "s3cret", Role: account.RoleStudent},
			wantRole: account.RoleStudent,
		},
		{
			name:     "teacher suffix registers a teacher",
			na:       account.NewAccount{Name: "Tea", Email: "tea@eduteacher.com", Password: "s3cret", Role: account.RoleTeacher},
			wantRole: account.RoleTeacher,
		},
		{
			name:     "admin suffix registers an admin",
			na:       account.NewAccount{Name: "Boss", Email: "boss@admin.com", Password: "s3cret", Role: account.RoleAdmin},
			wantRole: account.RoleAdmin,
		},
		{
			name:    "plain email cannot claim teacher",
			na:      account.NewAccount{Name: "Faker", Email: "faker@test.cd", Password: "s3cret", Role: account.RoleTeacher},
			wantErr: account.ErrDomainMismatch,
		},
		{
			name:    "teacher suffix cannot claim student",
			na:      account.NewAccount{Name: "Faker", Email: "faker@eduteacher.com", Password: "s3cret", Role: account.RoleStudent},
			wantErr: account.ErrDomainMismatch,
		},
		{
			name:    "admin suffix wins over teacher claim",
			na:      account.NewAccount{Name: "Faker", Email: "faker@admin.com", Password: "s3cret", Role: account.RoleTeacher},
			wantErr: account.ErrDomainMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct, err := svc.Register(ctx, tt.na)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, acct.Role)
			assert.True(t, acct.Active())
			assert.True(t, acct.HasHashedPassword())
		})
	}
}

func Test_service_Register_duplicateEmail(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	testutil.CreateAccount(t, repo, "Taken", "taken@test.cd", "", account.RoleStudent, true)

	_, err := svc.Register(ctx, account.NewAccount{Name: "Copy", Email: "taken@test.cd", Password: "s3cret", Role: account.RoleStudent})
	assert.Equal(t, account.ErrEmailExists, err)

	// the pool spans roles: a teacher cannot reuse a student's email either
	err = svc.CheckUniqueness("taken@test.cd")
	assert.Equal(t, account.ErrEmailExists, err)
}

func Test_service_Authenticate(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	acct := testutil.CreateAccount(t, repo, "Hero", "hero@test.cd", "s3cret", account.RoleStudent, true)

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, acct.Email, "nope")
		assert.Equal(t, account.ErrInvalidCredentials, err)
	})
	t.Run("unknown email looks the same", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "ghost@test.cd", "s3cret")
		assert.Equal(t, account.ErrInvalidCredentials, err)
	})
	t.Run("success sets lastLogin", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "HERO@test.cd", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, acct.ID, got.ID)
		assert.False(t, got.LastLogin.IsZero())
	})
}

func Test_service_Authenticate_legacyPassword(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	legacy := testutil.CreateLegacyAccount(t, repo, "Old Timer", "old@test.cd", "0ldpwd", account.RoleStudent)
	require.False(t, legacy.HasHashedPassword())

	t.Run("wrong plaintext rejected", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, legacy.Email, "nope")
		assert.Equal(t, account.ErrInvalidCredentials, err)
	})
	t.Run("matching plaintext migrates the hash", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, legacy.Email, "0ldpwd")
		require.NoError(t, err)
		assert.True(t, got.HasHashedPassword())

		// stored row was re-hashed; the old plaintext no longer matches byte-wise
		stored, err := repo.GetAccount(ctx, account.GetFilter{ID: legacy.ID})
		require.NoError(t, err)
		assert.True(t, stored.HasHashedPassword())
		require.NoError(t, stored.CheckPassword("0ldpwd"))
	})
}

func Test_service_Delete_protected(t *testing.T) {
	conf := testutil.NewConfig()
	db := dummydb.Open()
	repo := dummydb.NewAccountRepository(db)
	crsRepo := dummydb.NewCourseRepository(db)
	enrRepo := dummydb.NewEnrollmentRepository(db)
	svc := account.NewService(conf, repo, emailsvc.NewConsoleServiceMock(conf))
	ctx := context.Background()

	teacher := testutil.CreateAccount(t, repo, "Teacher", "tea@eduteacher.com", "", account.RoleTeacher, true)
	student := testutil.CreateAccount(t, repo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	crs := testutil.CreateCourse(t, crsRepo, "Biology", "MWF 9:00-9:50 AM", 30, teacher.ID)
	enr := testutil.CreateEnrollment(t, enrRepo, student.ID, crs.ID, 100)

	assert.Equal(t, account.ErrAccountProtected, svc.Delete(ctx, teacher.ID))
	assert.Equal(t, account.ErrAccountProtected, svc.Delete(ctx, student.ID))

	// dependents removed bottom-up; deletes now cascade through
	require.NoError(t, enrRepo.DeleteEnrollment(ctx, enr.ID))
	require.NoError(t, svc.Delete(ctx, student.ID))
	_, err := crsRepo.DeleteCoursesByID(ctx, crs.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, teacher.ID))
}
