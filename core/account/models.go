package account

import (
	"bytes"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusreg/registrar/core"
)

// Roles; mutually exclusive, fixed at registration time.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleTeacher, RoleAdmin}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DeriveRole infers the intended role from the email's domain suffix.
// The admin suffix takes precedence over the teacher suffix.
func DeriveRole(email string, reg core.RegistryConfig) string {
	email = core.CleanString(email, true /* lower */)
	switch {
	case strings.HasSuffix(email, strings.ToLower(reg.AdminEmailSuffix)):
		return RoleAdmin
	case strings.HasSuffix(email, strings.ToLower(reg.TeacherEmailSuffix)):
		return RoleTeacher
	default:
		return RoleStudent
	}
}

type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// HasHashedPassword reports whether the stored credential is a bcrypt hash.
// Rows imported from the legacy registration system store plaintext and are
// re-hashed on first successful login.
func (a *Account) HasHashedPassword() bool {
	return bytes.HasPrefix(a.PasswordHash, []byte("$2"))
}

func (a *Account) SetActive(active bool) { a.IsActive = &active }

func (a *Account) Active() bool { return a.IsActive != nil && *a.IsActive }

func (a *Account) IsStudent() bool { return a.Role == RoleStudent }
func (a *Account) IsTeacher() bool { return a.Role == RoleTeacher }
func (a *Account) IsAdmin() bool   { return a.Role == RoleAdmin }

// NewAccount contains information needed to register a new Account.
type NewAccount struct {
	Name            string `json:"name" validate:"required,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,accountrole"`
}

func (na *NewAccount) Validate(validate *validator.Validate, svc ServiceInterface) error {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Role = core.CleanString(na.Role, true /* lower */)

	if err := validate.Struct(na); err != nil {
		return err
	}
	return svc.CheckUniqueness(na.Email)
}

// UpdateAccount defines what information may be provided to modify an existing Account.
// Role is deliberately absent: it is immutable after registration.
type UpdateAccount struct {
	Name            string `json:"name" validate:"omitempty,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (ua *UpdateAccount) Validate(origAcct Account, validate *validator.Validate, svc ServiceInterface) error {
	name := core.CleanString(ua.Name)
	if name != "" {
		ua.Name = name
	} else {
		ua.Name = origAcct.Name
	}

	email := core.CleanString(ua.Email, true /* lower */)
	if email != "" {
		ua.Email = email
	} else {
		ua.Email = origAcct.Email
	}

	if err := validate.Struct(ua); err != nil {
		return err
	}
	return svc.CheckUniqueness(ua.Email, origAcct)
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

// custom validation tags
var (
	accountRoleTag  = "accountrole"
	accountRoleText = "invalid role"
)

// RegisterCustomValidators registers the account package's validation tags.
func RegisterCustomValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(accountRoleTag, func(fl validator.FieldLevel) bool {
		role := fl.Field().String()
		for _, r := range AllRoles {
			if role == r {
				return true
			}
		}
		return false
	})
	core.RegisterCustomTranslation(validate, translator, accountRoleTag, accountRoleText)
}
