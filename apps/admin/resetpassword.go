package main

import (
	"context"

	"github.com/campusreg/registrar/core"
	"github.com/campusreg/registrar/core/account"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.acctRepo.UpdateAccount(ctx, acct, nil); err != nil {
		return err
	}
	return nil
}
