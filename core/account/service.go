package account

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/campusreg/registrar/core"
)

var (
	// errors
	ErrNotFound           = errors.New("account not found")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrDomainMismatch     = errors.New("the email domain does not match the requested role")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountProtected   = errors.New("account still has courses or enrollments; remove them first")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedAccounts ...Account) error
		CreateAccount(ctx context.Context, acct Account) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		// QueryAccounts applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Account.Name or Account.Email.
		QueryAccounts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error)
		// UpdateAccount saves the set fields; Role is immutable through this path.
		UpdateAccount(ctx context.Context, acct Account, isActive *bool) (Account, error)
		// UpdateOrCreateAccount also persists Role; reserved for the admin
		// bootstrap CLI.
		UpdateOrCreateAccount(ctx context.Context, acct Account) (Account, error)
		// DeleteAccountsByID fails with ErrAccountProtected while any of the
		// accounts still owns courses or enrollments.
		DeleteAccountsByID(ctx context.Context, ids ...string) (int, error)
		CountAccounts(ctx context.Context, role string) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(email string, exclAccts ...Account) error
		Register(ctx context.Context, na NewAccount) (Account, error)
		Authenticate(ctx context.Context, email, pwd string) (Account, error)
		GetByID(ctx context.Context, id string) (Account, error)
		GetByEmail(ctx context.Context, email string) (Account, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error)
		Update(ctx context.Context, id string, ua UpdateAccount) (Account, error)
		Delete(ctx context.Context, ids ...string) error
		Count(ctx context.Context, role string) (int, error)
	}

	service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService) *service {
	return &service{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
	}
}

// CheckUniqueness fails with ErrEmailExists when another account (of any
// role) already holds the email; the uniqueness pool spans students, teachers
// and admins alike.
func (svc *service) CheckUniqueness(email string, exclAccts ...Account) error {
	return svc.repo.CheckEmailUniqueness(context.Background(), email, exclAccts...)
}

// Register creates a new Account. The role is re-derived from the email's
// domain suffix on the server side; a declared role that disagrees with the
// derived one is rejected. The role never changes after this point.
func (svc *service) Register(ctx context.Context, na NewAccount) (Account, error) {
	if derived := DeriveRole(na.Email, svc.conf.Registry); derived != na.Role {
		return Account{}, ErrDomainMismatch
	}

	now := time.Now().UTC()
	acct := Account{
		Name:      na.Name,
		Email:     na.Email,
		Role:      na.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	acct.SetActive(true)
	if err := acct.SetPassword(na.Password); err != nil {
		return Account{}, err
	}

	acct, err := svc.repo.CreateAccount(ctx, acct)
	if err != nil {
		return Account{}, err
	}
	svc.sendWelcomeEmail(acct)
	return acct, nil
}

// Authenticate verifies the credentials and returns the matching Account.
// A legacy plaintext credential is compared directly and transparently
// re-hashed on success. Unknown email and password mismatch are collapsed
// into a single ErrInvalidCredentials to avoid account enumeration.
func (svc *service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acct, err := svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "finding account by email")
	}

	if acct.HasHashedPassword() {
		if err := acct.CheckPassword(pwd); err != nil {
			return Account{}, ErrInvalidCredentials
		}
	} else {
		// one-time migration path for pre-hash rows
		if subtle.ConstantTimeCompare(acct.PasswordHash, []byte(pwd)) != 1 {
			return Account{}, ErrInvalidCredentials
		}
		if err := acct.SetPassword(pwd); err != nil {
			return Account{}, errors.Wrap(err, "rehashing legacy password")
		}
	}

	acct.LastLogin = time.Now().UTC()
	acct.UpdatedAt = acct.LastLogin
	acct, err = svc.repo.UpdateAccount(ctx, acct, nil)
	if err != nil {
		return Account{}, errors.Wrap(err, "setting lastLogin")
	}
	return acct, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Account, error) {
	return svc.repo.QueryAccounts(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, ua UpdateAccount) (Account, error) {
	acct := Account{
		ID:        id,
		Name:      ua.Name,
		Email:     ua.Email,
		UpdatedAt: time.Now().UTC(),
	}
	if ua.Password != "" {
		if err := acct.SetPassword(ua.Password); err != nil {
			return Account{}, err
		}
	}
	return svc.repo.UpdateAccount(ctx, acct, ua.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteAccountsByID(ctx, ids...)
	return err
}

func (svc *service) Count(ctx context.Context, role string) (int, error) {
	return svc.repo.CountAccounts(ctx, role)
}

func (svc *service) sendWelcomeEmail(acct Account) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject: fmt.Sprintf("Welcome to %s", svc.conf.AppName),
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYour %s account has been created. You may now log in at %s.\n",
			acct.Name, acct.Role, svc.conf.FrontendBaseURL,
		),
	})
}
