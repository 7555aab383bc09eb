package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/gophsafe/internal/buildinfo"
	"github.com/dmitrijs2005/gophsafe/internal/cli"
	"github.com/dmitrijs2005/gophsafe/internal/common"
	"github.com/dmitrijs2005/gophsafe/internal/config"
	"github.com/dmitrijs2005/gophsafe/internal/filex"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
	"github.com/dmitrijs2005/gophsafe/internal/safes"
	"github.com/spf13/cobra"
)

const appName = "gophsafe"

// env is shared by the commands.
type env struct {
	cfg *config.Config
	log logging.Logger
}

// registry opens the safes registry. The application directory is created
// first since the default DSN points into it.
func (e *env) registry(ctx context.Context) (*safes.Store, error) {
	if _, err := filex.AppDataDir(appName); err != nil {
		e.log.Warn(ctx, "no application directory", "error", err)
	}
	st, err := safes.Open(ctx, e.cfg.RegistryDSN)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return st, nil
}

// resolve maps a nickname, id or path to a file and its registry entry.
// Unregistered paths come back with a nil safe.
func resolve(ctx context.Context, st *safes.Store, arg string) (string, *safes.Safe, error) {
	s, err := st.Safes.Get(ctx, arg)
	if err == nil {
		return s.Path, s, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", nil, err
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", nil, err
	}
	all, err := st.Safes.List(ctx)
	if err != nil {
		return "", nil, err
	}
	for _, s := range all {
		if s.Path == abs {
			return abs, s, nil
		}
	}
	return abs, nil, nil
}

// loadApp opens the registry, resolves arg and loads the database into a new
// shell. The caller closes the store.
func (e *env) loadApp(cmd *cobra.Command, arg string) (*cli.App, *safes.Store, error) {
	ctx := cmd.Context()
	st, err := e.registry(ctx)
	if err != nil {
		return nil, nil, err
	}
	path, safe, err := resolve(ctx, st, arg)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	app := cli.NewApp(e.cfg, e.log, st, cmd.InOrStdin(), cmd.OutOrStdout())
	if err := app.Load(ctx, path, safe); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return app, st, nil
}

func newRootCmd(cfg *config.Config, log logging.Logger) *cobra.Command {
	e := &env{cfg: cfg, log: log}

	root := &cobra.Command{
		Use:          appName,
		Short:        "Encrypted password database shell for KeePass and Password Safe files",
		SilenceUsage: true,
	}

	// The values were already applied by config.Load. They are declared
	// again so cobra accepts them and lists them in the help.
	var configFile string
	pf := root.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "JSON configuration file")
	pf.StringVarP(&cfg.DefaultFormat, "format", "f", cfg.DefaultFormat, "format for new databases (kdbx, kdb, psafe3)")
	pf.StringVarP(&cfg.RegistryDSN, "registry", "r", cfg.RegistryDSN, "registry DSN")
	pf.IntVarP(&cfg.DereferenceMaxDepth, "deref-depth", "d", cfg.DereferenceMaxDepth, "dereference pass cap")
	pf.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")

	root.AddCommand(
		newNewCmd(e),
		newOpenCmd(e),
		newInfoCmd(e),
		newGenCmd(e),
		newSafesCmd(e),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				buildinfo.PrintBuildData(cmd.OutOrStdout())
			},
		},
	)
	return root
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
