package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
)

type dbAccount struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (a dbAccount) unpack() account.Account {
	acct := account.Account{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Role:         a.Role,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		LastLogin:    a.LastLogin.Time,
	}
	acct.SetActive(a.IsActive)
	return acct
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) *accountRepository {
	return &accountRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to account.ErrNotFound
func (repo *accountRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return account.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedAccounts ...account.Account) error {
	qb := psql.Select("COUNT(*)").From("account").Where(sq.Eq{"email": email})
	if len(excludedAccounts) > 0 {
		ids := make([]string, 0, len(excludedAccounts))
		for _, a := range excludedAccounts {
			ids = append(ids, a.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, query, args...); err != nil {
		return errors.Wrap(err, "checking account uniqueness")
	}
	if cnt > 0 {
		return account.ErrEmailExists
	}
	return nil
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	acct.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO account (id, name, email, role, is_active, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		acct.ID, acct.Name, acct.Email, acct.Role, acct.Active(), acct.PasswordHash, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(errors.Cause(err)) {
			return account.Account{}, account.ErrEmailExists
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acct, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	qb := psql.Select("*").From("account")
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return account.Account{}, account.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	} else {
		qb = qb.Where(sq.Eq{"email": filter.Email})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return account.Account{}, errors.Wrap(err, "building account query")
	}

	var acct dbAccount
	if err := repo.db.GetContext(ctx, &acct, query, args...); err != nil {
		return account.Account{}, repo.trapNoRowsErr(err, "finding account")
	}
	return acct.unpack(), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter *account.QueryFilter, ordering []core.DBOrdering) ([]account.Account, error) {
	qb := psql.Select("*").From("account")

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			qb = qb.Where(sq.Or{
				sq.Expr("name ILIKE ?", val),
				sq.Expr("email ILIKE ?", val),
			})
		}
		if filter.Role != "" {
			qb = qb.Where(sq.Eq{"role": filter.Role})
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building accounts query")
	}

	var rows []dbAccount
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	accts := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accts = append(accts, row.unpack())
	}
	return accts, nil
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acct account.Account, isActive *bool) (account.Account, error) {
	// only save set fields; role is immutable
	qb := psql.Update("account").Where(sq.Eq{"id": acct.ID}).Set("updated_at", acct.UpdatedAt)
	if acct.Name != "" {
		qb = qb.Set("name", acct.Name)
	}
	if acct.Email != "" {
		qb = qb.Set("email", acct.Email)
	}
	if acct.PasswordHash != nil {
		qb = qb.Set("password_hash", acct.PasswordHash)
	}
	if isActive != nil {
		qb = qb.Set("is_active", *isActive)
	}
	if !acct.LastLogin.IsZero() {
		qb = qb.Set("last_login", acct.LastLogin)
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return account.Account{}, errors.Wrap(err, "building account update")
	}

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(errors.Cause(err)) {
			return account.Account{}, account.ErrEmailExists
		}
		return account.Account{}, errors.Wrap(err, "updating account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.Account{}, account.ErrNotFound
	}
	return repo.GetAccount(ctx, account.GetFilter{ID: acct.ID})
}

// UpdateOrCreateAccount also persists Role; the admin bootstrap CLI is its
// only caller and the one path allowed to change a role.
func (repo *accountRepository) UpdateOrCreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		return repo.CreateAccount(ctx, acct)
	}
	if acct.Role != "" {
		if _, err := repo.db.ExecContext(ctx, `UPDATE account SET role = $1 WHERE id = $2`, acct.Role, acct.ID); err != nil {
			return account.Account{}, errors.Wrap(err, "updating account role")
		}
	}
	return repo.UpdateAccount(ctx, acct, acct.IsActive)
}

func (repo *accountRepository) DeleteAccountsByID(ctx context.Context, ids ...string) (int, error) {
	query, args, err := psql.Delete("account").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building account delete")
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isForeignKeyViolation(errors.Cause(err)) {
			return 0, account.ErrAccountProtected
		}
		return 0, errors.Wrap(err, "deleting accounts")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting accounts")
	}
	return int(cnt), nil
}

func (repo *accountRepository) CountAccounts(ctx context.Context, role string) (int, error) {
	qb := psql.Select("COUNT(*)").From("account")
	if role != "" {
		qb = qb.Where(sq.Eq{"role": role})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building account count")
	}

	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting accounts")
	}
	return cnt, nil
}
