package tests

import (
	"net/http"
	"testing"

	echoapi "github.com/campusreg/registrar/apps/api/echo"
	"github.com/campusreg/registrar/core/account"
	testutil "github.com/campusreg/registrar/tests"
)

func Test_metricsApi_retrieve(t *testing.T) {
	app := setup(t)

	student1 := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	student2 := testutil.CreateAccount(t, acctRepo, "Other", "other@test.cd", "", account.RoleStudent, true)
	teacher := testutil.CreateAccount(t, acctRepo, "Teacher", "teacher@eduteacher.com", "", account.RoleTeacher, true)
	testutil.CreateAccount(t, acctRepo, "Admin", "admin@admin.com", "", account.RoleAdmin, true)

	bio := testutil.CreateCourse(t, crsRepo, "Biology", "MWF 9:00-9:50 AM", 30, teacher.ID)
	testutil.CreateEnrollment(t, enrRepo, student1.ID, bio.ID, 100)
	testutil.CreateEnrollment(t, enrRepo, student2.ID, bio.ID, 100)

	tests := []httpTest{
		{
			name: "counts without auth", wantCode: http.StatusOK,
			wantData: marchallObj(t, echoapi.MetricsResponse{Students: 2, Teachers: 1, Admins: 1, Courses: 1, Enrollments: 2}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/metrics"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
