package main

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-kernsched/scenario"
	"github.com/spf13/cobra"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `validate <scenario.yaml>`,
		Short: `Check a scenario is runnable`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.ParseFile(args[0])
			var invalid *scenario.ValidationError
			if errors.As(err, &invalid) {
				for _, p := range invalid.Problems {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", p.Field, p.Message)
				}
				return fmt.Errorf(`%s: %d problem(s)`, args[0], len(invalid.Problems))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d threads, %d semaphores)\n", args[0], len(sc.Threads), len(sc.Semaphores))
			return nil
		},
	}
}
