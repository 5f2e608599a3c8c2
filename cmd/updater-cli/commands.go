package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vrsandeep/mango-updater/internal/core"
	"github.com/vrsandeep/mango-updater/internal/models"
)

// Opener builds the application for one command invocation.
type Opener func() (*core.App, error)

// New returns the root command. Every sub-command opens its own App.
func New(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updater-cli [sub-command]",
		Short: "Install, uninstall and update manifest-tracked plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newInstallCmd(open),
		newUninstallCmd(open),
		newUpdateCmd(open),
		newCheckCmd(open),
		newListCmd(open),
	)
	return cmd
}

func withApp(open Opener, fn func(cmd *cobra.Command, app *core.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := open()
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, app, args)
	}
}

func resultError(code models.ResultCode, msg string) error {
	if code.Satisfied() {
		return nil
	}
	return fmt.Errorf("%s: %s", code, msg)
}

func newInstallCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "install <manifest-url> [token]",
		Short: "Install a plugin and its dependencies from a remote manifest",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withApp(open, func(cmd *cobra.Command, app *core.App, args []string) error {
			token := ""
			if len(args) == 2 {
				token = args[1]
			}
			code, msg := app.Installer().InstallFromManifestURL(cmd.Context(), args[0], token)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", code, msg)
			return resultError(code, msg)
		}),
	}
}

func newUninstallCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <plugin-name>",
		Short: "Uninstall a plugin and the dependencies only it required",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, app *core.App, args []string) error {
			code, msg := app.Installer().Uninstall(cmd.Context(), args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", code, msg)
			return resultError(code, msg)
		}),
	}
}

func newUpdateCmd(open Opener) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check every installed plugin and stage available updates",
		Args:  cobra.NoArgs,
		RunE: withApp(open, func(cmd *cobra.Command, app *core.App, args []string) error {
			restart, err := app.Updater().CheckAndUpdateAll(cmd.Context(), force)
			if err != nil {
				return err
			}
			if restart {
				fmt.Fprintln(cmd.OutOrStdout(), "Updates staged, restart the host to load them.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "All plugins are up to date.")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even when the installed version is current")
	return cmd
}

func newCheckCmd(open Opener) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "check <plugin-name>",
		Short: "Check a single plugin for updates",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(open, func(cmd *cobra.Command, app *core.App, args []string) error {
			action, err := app.Updater().CheckAndUpdateOne(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], action)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even when the installed version is current")
	return cmd
}

func newListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed plugins",
		Args:  cobra.NoArgs,
		RunE: withApp(open, func(cmd *cobra.Command, app *core.App, args []string) error {
			m, err := app.Manifest().Read(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(m.Plugins) == 0 {
				fmt.Fprintln(out, "No plugins installed.")
				return nil
			}
			for _, name := range m.PluginNames() {
				p := m.Plugins[name]
				fmt.Fprintf(out, "%-40s %-12s %-8s %s\n", name, p.CurrentVersion, p.SourceType, p.FileName)
			}
			return nil
		}),
	}
}
