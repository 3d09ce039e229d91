package main

import (
	"context"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
)

// addAdmin updates or creates an admin account. This is the bootstrap path:
// the first admin cannot register itself through the API.
func (cli *commandLine) addAdmin(name, email, pwd string) error {
	var acct account.Account
	var err error
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)

	if acct, err = cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: email}); err != nil {
		if err != account.ErrNotFound {
			return err
		}
		acct = account.Account{
			Name:  name,
			Email: email,
		}
	}
	acct.Role = account.RoleAdmin
	acct.SetActive(true)
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.acctRepo.UpdateOrCreateAccount(ctx, acct); err != nil {
		return err
	}
	return nil
}
