package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	echoapi "github.com/campusreg/registrar/apps/api/echo"
	"github.com/campusreg/registrar/core/account"
	emailsvc "github.com/campusreg/registrar/services/email"
	testutil "github.com/campusreg/registrar/tests"
)

func Test_accountApi_register(t *testing.T) {
	app := setup(t)

	testutil.CreateAccount(t, acctRepo, "Taken", "taken@test.cd", "", account.RoleStudent, true)

	reqMsg := "this field is required"
	body := func(name, email, pwd, confirm, role string) []byte {
		return marchallObj(t, account.NewAccount{Name: name, Email: email, Password: pwd, PasswordConfirm: confirm, Role: role})
	}

	type extraTest struct {
		wantRole  string
		wantEmail bool
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name": reqMsg, "email": reqMsg, "password": reqMsg, "password_confirm": reqMsg, "role": reqMsg,
			}),
		},
		{
			name: "invalid email & role", wantCode: http.StatusBadRequest,
			body: body("Jo", "lol", "s3cret", "s3cret", "boss"),
			wantData: marchallObj(t, map[string]string{
				"email": "email must be a valid email address", "role": "invalid role",
			}),
		},
		{
			name: "name with symbols", wantCode: http.StatusBadRequest,
			body:     body("J@ck <script>", "jack@test.cd", "s3cret", "s3cret", account.RoleStudent),
			wantData: marchallObj(t, map[string]string{"name": "only alphanumeric characters and underscores are allowed"}),
		},
		{
			name: "password mismatch", wantCode: http.StatusBadRequest,
			body:     body("Jo", "jo@test.cd", "s3cret", "nope", account.RoleStudent),
			wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm must be equal to Password"}),
		},
		{
			name: "domain mismatch", wantCode: http.StatusBadRequest,
			body:     body("Jo", "jo@test.cd", "s3cret", "s3cret", account.RoleTeacher),
			wantData: marchallObj(t, httpErr{Error: "the email domain does not match the requested role"}),
		},
		{
			name: "duplicate email", wantCode: http.StatusConflict,
			body:     body("Copy Cat", "taken@test.cd", "s3cret", "s3cret", account.RoleStudent),
			wantData: marchallObj(t, httpErr{Error: "an account with this email already exists"}),
		},
		{
			name: "student registered", wantCode: http.StatusCreated,
			body:  body("Stu Dent", "stu@test.cd", "s3cret", "s3cret", account.RoleStudent),
			extra: extraTest{wantRole: account.RoleStudent, wantEmail: true},
		},
		{
			name: "teacher registered", wantCode: http.StatusCreated,
			body:  body("Tea Cher", "tea@eduteacher.com", "s3cret", "s3cret", account.RoleTeacher),
			extra: extraTest{wantRole: account.RoleTeacher, wantEmail: true},
		},
		{
			name: "admin registered", wantCode: http.StatusCreated,
			body:  body("Big Boss", "boss@admin.com", "s3cret", "s3cret", account.RoleAdmin),
			extra: extraTest{wantRole: account.RoleAdmin, wantEmail: true},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/accounts/register"

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.SentMessages = nil // reset

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if extra, ok := tt.extra.(extraTest); ok {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var acct account.Account
				if err := json.Unmarshal(rec.Body.Bytes(), &acct); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if acct.ID == "" {
					t.Error("failed! empty account ID")
				}
				if acct.Role != extra.wantRole {
					t.Errorf("failed! role = %s; want %s", acct.Role, extra.wantRole)
				}
				if !acct.Active() {
					t.Error("failed! account not active")
				}
				if extra.wantEmail && len(emailsvc.SentMessages) != 1 {
					t.Errorf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_login(t *testing.T) {
	app := setup(t)

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "s3cret", account.RoleStudent, true)
	naughty := testutil.CreateAccount(t, acctRepo, "N Dog", "ndog@test.cd", "s3cret", account.RoleStudent, false)
	legacy := testutil.CreateLegacyAccount(t, acctRepo, "Old Timer", "old@test.cd", "0ldpwd", account.RoleStudent)

	invalidCreds := marchallObj(t, httpErr{Error: "invalid credentials"})
	body := func(email, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: email, Password: pwd})
	}

	type extraTest struct {
		acctID string
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{name: "unknown email", body: body("lol@test.cd", "s3cret"), wantCode: http.StatusBadRequest, wantData: invalidCreds},
		{name: "wrong password", body: body(student.Email, "nope"), wantCode: http.StatusBadRequest, wantData: invalidCreds},
		{
			name: "inactive account", body: body(naughty.Email, "s3cret"), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "logged in", body: body(student.Email, "s3cret"), wantCode: http.StatusOK, extra: extraTest{acctID: student.ID}},
		{name: "mixed case email", body: body("HERO@test.cd", "s3cret"), wantCode: http.StatusOK, extra: extraTest{acctID: student.ID}},
		{name: "legacy plaintext migrated", body: body(legacy.Email, "0ldpwd"), wantCode: http.StatusOK, extra: extraTest{acctID: legacy.ID}},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/accounts/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if extra, ok := tt.extra.(extraTest); ok {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}

				refreshed, err := acctRepo.GetAccount(context.Background(), account.GetFilter{ID: extra.acctID})
				if err != nil {
					t.Fatalf("GetAccount() failed: %v", err)
				}
				if refreshed.LastLogin.IsZero() {
					t.Error("failed! lastLogin not set")
				}
				if !refreshed.HasHashedPassword() {
					t.Error("failed! password not re-hashed after login")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_logout(t *testing.T) {
	app := setup(t)

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "s3cret", account.RoleStudent, true)
	token := getToken(t, student)

	serve := func(method, path, token string) *int {
		req, rec := newAuthRequest(method, path, token)
		app.ServeHTTP(rec, req)
		return &rec.Code
	}

	// token works before logout
	if code := serve(http.MethodGet, "/v1/accounts/"+student.ID, token); *code != http.StatusOK {
		t.Fatalf("pre-logout retrieve: code = %v; want %v", *code, http.StatusOK)
	}

	// logout revokes it
	if code := serve(http.MethodPost, "/v1/accounts/logout", token); *code != http.StatusOK {
		t.Fatalf("logout: code = %v; want %v", *code, http.StatusOK)
	}
	if code := serve(http.MethodGet, "/v1/accounts/"+student.ID, token); *code != http.StatusUnauthorized {
		t.Errorf("post-logout retrieve: code = %v; want %v", *code, http.StatusUnauthorized)
	}
	if code := serve(http.MethodPost, "/v1/courses", token); *code != http.StatusUnauthorized {
		t.Errorf("post-logout course access: code = %v; want %v", *code, http.StatusUnauthorized)
	}

	// logging out again is a no-op success
	if code := serve(http.MethodPost, "/v1/accounts/logout", token); *code != http.StatusOK {
		t.Errorf("double logout: code = %v; want %v", *code, http.StatusOK)
	}

	// a fresh login issues a usable token again
	fresh := getToken(t, student)
	if code := serve(http.MethodGet, "/v1/accounts/"+student.ID, fresh); *code != http.StatusOK {
		t.Errorf("fresh token retrieve: code = %v; want %v", *code, http.StatusOK)
	}
}

func Test_accountApi_refreshToken(t *testing.T) {
	app := setup(t)

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	naughty := testutil.CreateAccount(t, acctRepo, "N Dog", "ndog@test.cd", "", account.RoleStudent, false)

	now := time.Now()
	unrefreshableClaims := echoapi.GetAccountClaims(student)
	unrefreshableClaims.OrigIssuedAt = now.Add(-2 * conf.Server.JWTRefreshExpirationDelta).Unix() // older than threshold
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken(): %v", err)
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Inactive account not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/accounts/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Errorf("json.Unmarshal() failed! err %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_query(t *testing.T) {
	app := setup(t)

	path := func(search, role string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if role != "" {
			v.Add("role", role)
		}
		return "/v1/accounts?" + v.Encode()
	}

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	teacher := testutil.CreateAccount(t, acctRepo, "Teacher", "teacher@eduteacher.com", "", account.RoleTeacher, true)
	admin := testutil.CreateAccount(t, acctRepo, "Admin", "admin@admin.com", "", account.RoleAdmin, true)

	adminToken := getToken(t, admin)
	empty := marchallList(t, []interface{}{}...)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/accounts", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/accounts", token: getToken(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Teachers are not admins", path: "/v1/accounts", token: getToken(t, teacher), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{name: "Get all", path: "/v1/accounts", token: adminToken, wantData: marchallList(t, student, teacher, admin)},
		{name: "search (unknown)", path: path("lol", ""), token: adminToken, wantData: empty},
		{name: "search=hero", path: path("hero", ""), token: adminToken, wantData: marchallList(t, student)},
		{name: "role=teacher", path: path("", account.RoleTeacher), token: adminToken, wantData: marchallList(t, teacher)},
		{name: "role (unknown)", path: path("", "lol"), token: adminToken, wantData: empty},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_accountDetail(t *testing.T) {
	app := setup(t)

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	other := testutil.CreateAccount(t, acctRepo, "Other", "other@test.cd", "", account.RoleStudent, true)
	teacher := testutil.CreateAccount(t, acctRepo, "Teacher", "teacher@eduteacher.com", "", account.RoleTeacher, true)
	admin := testutil.CreateAccount(t, acctRepo, "Admin", "admin@admin.com", "", account.RoleAdmin, true)

	crs := testutil.CreateCourse(t, crsRepo, "Biology", "MWF 9:00-9:50 AM", 30, teacher.ID)
	testutil.CreateEnrollment(t, enrRepo, other.ID, crs.ID, 100)

	studentToken := getToken(t, student)
	adminToken := getToken(t, admin)
	notFound := marchallObj(t, errNotFound)

	type extraTest struct {
		wantName string
	}
	tests := []httpTest{
		// retrieve
		{name: "retrieve: auth required", method: http.MethodGet, path: "/v1/accounts/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "retrieve: self", method: http.MethodGet, path: "/v1/accounts/" + student.ID, token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{name: "retrieve: other is hidden", method: http.MethodGet, path: "/v1/accounts/" + other.ID, token: studentToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "retrieve: admin sees any", method: http.MethodGet, path: "/v1/accounts/" + other.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, other)},
		{name: "retrieve: unknown ID", method: http.MethodGet, path: "/v1/accounts/lol", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},

		// update
		{
			name: "update: self name", method: http.MethodPut, path: "/v1/accounts/" + student.ID, token: studentToken,
			body: marchallObj(t, account.UpdateAccount{Name: "Super Hero"}), wantCode: http.StatusOK, extra: extraTest{wantName: "Super Hero"},
		},
		{
			name: "update: is_active is admin-only", method: http.MethodPut, path: "/v1/accounts/" + student.ID, token: studentToken,
			body: marchallObj(t, map[string]interface{}{"is_active": false}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "update: email is admin-only", method: http.MethodPut, path: "/v1/accounts/" + student.ID, token: studentToken,
			body: marchallObj(t, map[string]interface{}{"email": "new@test.cd"}), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "update: admin deactivates", method: http.MethodPut, path: "/v1/accounts/" + student.ID, token: adminToken,
			body: marchallObj(t, map[string]interface{}{"is_active": false}), wantCode: http.StatusOK, extra: extraTest{wantName: "Super Hero"},
		},

		// destroy
		{name: "destroy: admin required", method: http.MethodDelete, path: "/v1/accounts/" + other.ID, token: studentToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "destroy: admin cannot delete self", method: http.MethodDelete, path: "/v1/accounts/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "destroy: teacher with courses is protected", method: http.MethodDelete, path: "/v1/accounts/" + teacher.ID, token: adminToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "account still has courses or enrollments; remove them first"}),
		},
		{
			name: "destroy: student with enrollments is protected", method: http.MethodDelete, path: "/v1/accounts/" + other.ID, token: adminToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "account still has courses or enrollments; remove them first"}),
		},
		{name: "destroy: free account deleted", method: http.MethodDelete, path: "/v1/accounts/" + student.ID, token: adminToken, wantCode: http.StatusNoContent, wantData: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if extra, ok := tt.extra.(extraTest); ok {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				var acct account.Account
				if err := json.Unmarshal(rec.Body.Bytes(), &acct); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if acct.Name != extra.wantName {
					t.Errorf("failed! name = %s; want %s", acct.Name, extra.wantName)
				}
				return
			}
			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_queryRoles(t *testing.T) {
	app := setup(t)

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	admin := testutil.CreateAccount(t, acctRepo, "Admin", "admin@admin.com", "", account.RoleAdmin, true)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Admin required", token: getToken(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "Get roles", token: getToken(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, account.Roles)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/accounts/roles"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_dashboard(t *testing.T) {
	app := setup(t)

	student := testutil.CreateAccount(t, acctRepo, "Hero", "hero@test.cd", "", account.RoleStudent, true)
	other := testutil.CreateAccount(t, acctRepo, "Other", "other@test.cd", "", account.RoleStudent, true)
	teacher := testutil.CreateAccount(t, acctRepo, "Teacher", "teacher@eduteacher.com", "", account.RoleTeacher, true)
	admin := testutil.CreateAccount(t, acctRepo, "Admin", "admin@admin.com", "", account.RoleAdmin, true)

	bio := testutil.CreateCourse(t, crsRepo, "Biology", "MWF 9:00-9:50 AM", 30, teacher.ID)
	math := testutil.CreateCourse(t, crsRepo, "Calculus", "TR 2:00-3:15 PM", 25, teacher.ID)
	enr1 := testutil.CreateEnrollment(t, enrRepo, student.ID, bio.ID, 92.5)
	enr2 := testutil.CreateEnrollment(t, enrRepo, student.ID, math.ID, 100)

	// joined queries carry the course columns
	enr1.CourseName, enr1.CourseTime = bio.Name, bio.Time
	enr2.CourseName, enr2.CourseTime = math.Name, math.Time

	tests := []httpTest{
		{name: "Auth required", path: "/v1/students/" + student.ID + "/courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Other students are hidden", path: "/v1/students/" + student.ID + "/courses", token: getToken(t, other),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "Own dashboard", path: "/v1/students/" + student.ID + "/courses", token: getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallList(t, enr1, enr2),
		},
		{
			name: "Admin sees any dashboard", path: "/v1/students/" + student.ID + "/courses", token: getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallList(t, enr1, enr2),
		},
		{
			name: "Empty dashboard", path: "/v1/students/" + other.ID + "/courses", token: getToken(t, other),
			wantCode: http.StatusOK, wantData: marchallList(t, []interface{}{}...),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
