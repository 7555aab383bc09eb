package main

import (
	"fmt"

	"github.com/dmitrijs2005/gophsafe/internal/cli"
	"github.com/dmitrijs2005/gophsafe/internal/passgen"
	"github.com/spf13/cobra"
)

func newNewCmd(e *env) *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "new <path>",
		Short: "Create an empty database and open the shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := e.registry(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			app := cli.NewApp(e.cfg, e.log, st, cmd.InOrStdin(), cmd.OutOrStdout())
			if err := app.Create(ctx, args[0], e.cfg.Format(), nickname); err != nil {
				return err
			}
			app.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVarP(&nickname, "nickname", "n", "", "remember the database under this name")
	return cmd
}

func newOpenCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path|nickname>",
		Short: "Unlock a database and open the shell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, st, err := e.loadApp(cmd, args[0])
			if err != nil {
				return err
			}
			defer st.Close()
			app.Run(cmd.Context())
			return nil
		},
	}
}

func newInfoCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "info <path|nickname>",
		Short: "Unlock a database and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, st, err := e.loadApp(cmd, args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if err := app.Unlock(ctx); err != nil {
				return err
			}
			defer app.Lock(ctx)
			return app.Info(ctx)
		},
	}
}

func newGenCmd(e *env) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Print generated passwords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := e.cfg.GeneratorOptions()
			for n := 0; n < count; n++ {
				pw, err := passgen.Generate(opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), pw)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "how many passwords to print")
	cmd.Flags().IntVar(&e.cfg.Generator.Length, "length", e.cfg.Generator.Length, "password length")
	return cmd
}
