package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
)

type accountRepository struct {
	db *DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *DB) *accountRepository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) query() []account.Account {
	accts := make([]account.Account, 0, len(repo.db.account.table))
	for _, a := range repo.db.account.table {
		accts = append(accts, *a)
	}
	return accts
}

func (repo *accountRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedAccounts ...account.Account) error {
	repo.db.account.RLock()
	defer repo.db.account.RUnlock()

	for _, acct := range repo.query() {
		if acct.Email == email && !isExcluded(acct, excludedAccounts) {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	repo.db.account.Lock()
	defer repo.db.account.Unlock()

	for _, a := range repo.db.account.table {
		if a.Email == acct.Email {
			return account.Account{}, account.ErrEmailExists
		}
	}

	acct.ID = uuid.New().String()
	repo.db.account.table[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.account.RLock()
	defer repo.db.account.RUnlock()

	if filter.ID != "" {
		if acct, ok := repo.db.account.table[filter.ID]; ok {
			return *acct, nil
		}
		return account.Account{}, account.ErrNotFound
	}
	for _, acct := range repo.query() {
		if acct.Email == filter.Email {
			return acct, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter *account.QueryFilter, ordering []core.DBOrdering) ([]account.Account, error) {
	repo.db.account.RLock()
	defer repo.db.account.RUnlock()

	accts := repo.query()

	if filter != nil {
		if filter.Search != "" {
			var filtered []account.Account
			for _, a := range accts {
				if strings.Contains(strings.ToLower(a.Name), strings.ToLower(filter.Search)) ||
					strings.Contains(strings.ToLower(a.Email), strings.ToLower(filter.Search)) {
					filtered = append(filtered, a)
				}
			}
			accts = filtered
		}
		if accts != nil && filter.Role != "" {
			var filtered []account.Account
			for _, a := range accts {
				if a.Role == filter.Role {
					filtered = append(filtered, a)
				}
			}
			accts = filtered
		}
		if accts != nil && filter.IsActive != nil {
			var filtered []account.Account
			for _, a := range accts {
				if a.Active() == *filter.IsActive {
					filtered = append(filtered, a)
				}
			}
			accts = filtered
		}
		if accts != nil && !filter.CreatedFrom.IsZero() {
			var filtered []account.Account
			timeUTC := filter.CreatedFrom.UTC()
			for _, a := range accts {
				if a.CreatedAt.Equal(timeUTC) || a.CreatedAt.After(timeUTC) {
					filtered = append(filtered, a)
				}
			}
			accts = filtered
		}
		if accts != nil && !filter.CreatedTo.IsZero() {
			var filtered []account.Account
			timeUTC := filter.CreatedTo.UTC()
			for _, a := range accts {
				if a.CreatedAt.Before(timeUTC) || a.CreatedAt.Equal(timeUTC) {
					filtered = append(filtered, a)
				}
			}
			accts = filtered
		}
	}

	sortAccounts(accts, ordering)
	return accts, nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acct account.Account, isActive *bool) (account.Account, error) {
	repo.db.account.Lock()
	defer repo.db.account.Unlock()

	// only save set fields; Role is immutable
	origAcct, ok := repo.db.account.table[acct.ID]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if acct.Name != "" {
		origAcct.Name = acct.Name
	}
	if acct.Email != "" {
		origAcct.Email = acct.Email
	}
	if acct.PasswordHash != nil {
		origAcct.PasswordHash = acct.PasswordHash
	}
	if isActive != nil {
		origAcct.SetActive(*isActive)
	}
	if !acct.LastLogin.IsZero() {
		origAcct.LastLogin = acct.LastLogin
	}
	origAcct.UpdatedAt = acct.UpdatedAt

	repo.db.account.table[acct.ID] = origAcct
	return *origAcct, nil
}

// UpdateOrCreateAccount also persists Role; the admin bootstrap CLI is its
// only caller and the one path allowed to change a role.
func (repo *accountRepository) UpdateOrCreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		return repo.CreateAccount(ctx, acct)
	}
	updated, err := repo.UpdateAccount(ctx, acct, acct.IsActive)
	if err != nil {
		return account.Account{}, err
	}
	if acct.Role != "" && updated.Role != acct.Role {
		repo.db.account.Lock()
		defer repo.db.account.Unlock()
		origAcct := repo.db.account.table[acct.ID]
		origAcct.Role = acct.Role
		updated = *origAcct
	}
	return updated, nil
}

func (repo *accountRepository) DeleteAccountsByID(ctx context.Context, ids ...string) (int, error) {
	repo.db.course.RLock()
	repo.db.enrollment.RLock()
	for _, id := range ids {
		for _, crs := range repo.db.course.table {
			if crs.TeacherID == id {
				repo.db.enrollment.RUnlock()
				repo.db.course.RUnlock()
				return 0, account.ErrAccountProtected
			}
		}
		for _, enr := range repo.db.enrollment.table {
			if enr.StudentID == id {
				repo.db.enrollment.RUnlock()
				repo.db.course.RUnlock()
				return 0, account.ErrAccountProtected
			}
		}
	}
	repo.db.enrollment.RUnlock()
	repo.db.course.RUnlock()

	repo.db.account.Lock()
	defer repo.db.account.Unlock()
	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.account.table[id]; ok {
			delete(repo.db.account.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *accountRepository) CountAccounts(ctx context.Context, role string) (int, error) {
	repo.db.account.RLock()
	defer repo.db.account.RUnlock()

	if role == "" {
		return len(repo.db.account.table), nil
	}
	var cnt int
	for _, a := range repo.db.account.table {
		if a.Role == role {
			cnt++
		}
	}
	return cnt, nil
}

func isExcluded(acct account.Account, excludedAccounts []account.Account) bool {
	for _, excl := range excludedAccounts {
		if excl.ID == acct.ID {
			return true
		}
	}
	return false
}

func sortAccounts(accts []account.Account, ordering []core.DBOrdering) {
	for _, ord := range ordering {
		if ord.Field != "created_at" {
			continue
		}
		sort.SliceStable(accts, func(i, j int) bool {
			if ord.Ascending {
				return accts[i].CreatedAt.Before(accts[j].CreatedAt)
			}
			return accts[i].CreatedAt.After(accts[j].CreatedAt)
		})
	}
}
