package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophsafe/internal/database"
	"github.com/dmitrijs2005/gophsafe/internal/format"
	"github.com/dmitrijs2005/gophsafe/internal/format/registry"
	"github.com/dmitrijs2005/gophsafe/internal/safes"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newSafesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safes",
		Short: "List remembered databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := e.registry(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.Safes.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, "No databases registered.")
				return nil
			}
			for _, s := range all {
				opened := "never"
				if !s.LastOpenedAt.IsZero() {
					opened = humanize.Time(s.LastOpenedAt)
				}
				fmt.Fprintf(out, "%-16s %-14s %-16s %s\n", s.Nickname, s.Format, opened, s.Path)
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <nickname> <path>",
			Short: "Remember an existing database",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				abs, err := filepath.Abs(args[1])
				if err != nil {
					return err
				}
				data, err := os.ReadFile(abs)
				if err != nil {
					return err
				}
				f := database.LikelyFormat(data, database.WithRegistry(registry.Default(e.cfg.RegistryOptions())))
				if f == format.Unknown {
					return fmt.Errorf("%s: %w", abs, format.ErrFormatUnrecognized)
				}

				st, err := e.registry(ctx)
				if err != nil {
					return err
				}
				defer st.Close()

				s := &safes.Safe{Nickname: args[0], Path: abs, Format: f.String()}
				if err := st.Safes.Add(ctx, s); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", s.Nickname, f)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <nickname> <new-nickname>",
			Short: "Change the name of a remembered database",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				st, err := e.registry(ctx)
				if err != nil {
					return err
				}
				defer st.Close()

				return st.Tx(ctx, func(ctx context.Context, repo safes.Repository) error {
					s, err := repo.Get(ctx, args[0])
					if err != nil {
						return err
					}
					return repo.Rename(ctx, s.ID, args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "rm <nickname>",
			Short: "Forget a database. The file is left alone.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				st, err := e.registry(ctx)
				if err != nil {
					return err
				}
				defer st.Close()

				var s *safes.Safe
				err = st.Tx(ctx, func(ctx context.Context, repo safes.Repository) error {
					var err error
					if s, err = repo.Get(ctx, args[0]); err != nil {
						return err
					}
					return repo.Delete(ctx, s.ID)
				})
				if err != nil {
					return err
				}
				if !fileExists(s.Path) {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (file was already missing)\n", s.Nickname)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", s.Nickname)
				return nil
			},
		},
	)
	return cmd
}
