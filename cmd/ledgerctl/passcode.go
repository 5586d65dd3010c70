package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assefaz/stockledger/internal/access"
)

func passcodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passcode",
		Short: "Manage the shared operator passcode",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash <plain>",
		Short: "Print a bcrypt hash for ACCESS_PASSCODE_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := access.HashPasscode(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	})
	return cmd
}
