package main

import (
	"context"
	"errors"

	"github.com/farafmb/klubhaus/core"
)

// notifyAdmins sends the pending digest. Partial delivery failures are reported after the summary.
func (cli *commandLine) notifyAdmins(ctx context.Context) error {
	res, err := cli.modSvc.NotifyAdmins(ctx)
	var derrs core.DeliveryErrors
	if err != nil && !errors.As(err, &derrs) {
		return err
	}

	cli.printf("pending modifications: %d, admins notified: %d\n", res.Pending, res.Sent)
	for _, derr := range derrs {
		cli.printf("  %v\n", derr)
	}
	return err
}
