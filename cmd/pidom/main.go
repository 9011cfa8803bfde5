// Pidom drives RF power switches by name.
//
// It keeps a registry of paired receivers (name, radio id, on/off state and
// groups) on disk and calls the RF transmitter for every state change.
//
// Usage:
//
//	pidom [command] [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pidom/internal/registry"
	"pidom/internal/store"
	"pidom/internal/transmit"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "pidom",
		Short: "Control RF power switches by name",
		Long: `Pidom keeps a registry of paired RF power switches and drives them
through an external transmitter (the emit tool by default).

Devices are paired with 'pidom sync NAME' while the receiver is in
learning mode, then switched by name or by group.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default "+defaultConfigPath+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts.configPath != "" {
			return nil
		}
		path, err := expandConfigPath(defaultConfigPath)
		if err != nil {
			return err
		}
		opts.configPath = path
		return nil
	}

	root.AddCommand(
		newSwitchCmd(opts, "on", "Switch devices or a group on", (*registry.Registry).SwitchOn),
		newSwitchCmd(opts, "off", "Switch devices or a group off", (*registry.Registry).SwitchOff),
		newSwitchCmd(opts, "toggle", "Invert the state of devices or a group", (*registry.Registry).Toggle),
		newSyncCmd(opts),
		newUnsyncCmd(opts),
		newClearCmd(opts),
		newResetCmd(opts),
		newStateCmd(opts),
		newListCmd(opts),
		newRenameCmd(opts),
		newGroupCmd(opts),
		newVersionCmd(),
	)
	return root
}

type switchFunc func(*registry.Registry, context.Context, registry.Target) error

func newSwitchCmd(opts *rootOptions, use, short string, fn switchFunc) *cobra.Command {
	var group bool
	cmd := &cobra.Command{
		Use:   use + " NAME...",
		Short: short,
		Long: short + `.

A single NAME refers to the group of that name if one exists, otherwise to
the device. Several names are always devices.`,
		Example: fmt.Sprintf(`  pidom %[1]s lamp
  pidom %[1]s lamp fan
  pidom %[1]s --group living`, use),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := targetFor(args, group)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(ctx context.Context, reg *registry.Registry) error {
					return fn(reg, ctx, target)
				})
		},
	}
	cmd.Flags().BoolVarP(&group, "group", "g", false, "Treat NAME as a group")
	return cmd
}

func targetFor(args []string, group bool) (registry.Target, error) {
	switch {
	case group && len(args) != 1:
		return registry.Target{}, fmt.Errorf("--group takes exactly one group name")
	case group:
		return registry.GroupName(args[0]), nil
	case len(args) == 1:
		return registry.Name(args[0]), nil
	default:
		return registry.Names(args...), nil
	}
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync NAME",
		Short: "Pair a new receiver under NAME",
		Long: `Pair a new receiver under NAME.

Plug the receiver in (or hold its learn button) right before running this
command. The new id is sent repeatedly during the pairing window, then the
device is switched off.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(ctx context.Context, reg *registry.Registry) error {
					fmt.Fprintf(cmd.OutOrStdout(), "Pairing %s, keep the receiver in learning mode...\n", args[0])
					id, err := reg.Synchronize(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s paired with id %s\n", args[0], transmit.FormatID(id))
					return nil
				})
		},
	}
}

func newUnsyncCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "unsync NAME",
		Short: "Switch a device off and forget it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), force, true,
				func(ctx context.Context, reg *registry.Registry) error {
					return reg.Unsynchronize(ctx, args[0])
				})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove the device even if it cannot be switched off")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Unsync every device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), force, true,
				func(ctx context.Context, reg *registry.Registry) error {
					return reg.Clear(ctx)
				})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove devices even if they cannot be switched off")
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Switch every device off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(ctx context.Context, reg *registry.Registry) error {
					return reg.Reset(ctx)
				})
		},
	}
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state NAME",
		Short: "Print the state of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, false,
				func(_ context.Context, reg *registry.Registry) error {
					on, err := reg.State(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), onOff(on))
					return nil
				})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List paired devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, false,
				func(_ context.Context, reg *registry.Registry) error {
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "NAME\tID\tSTATE\tGROUPS")
					for _, name := range reg.Devices() {
						d, err := reg.Device(name)
						if err != nil {
							return err
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, transmit.FormatID(d.ID), onOff(d.On), strings.Join(d.Groups, ","))
					}
					if err := w.Flush(); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "\n%d free id(s)\n", len(reg.FreeIDs()))
					return nil
				})
		},
	}
}

func newRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(_ context.Context, reg *registry.Registry) error {
					return reg.Rename(args[0], args[1])
				})
		},
	}
}

func newGroupCmd(opts *rootOptions) *cobra.Command {
	group := &cobra.Command{
		Use:   "group",
		Short: "Manage device groups",
	}

	group.AddCommand(&cobra.Command{
		Use:   "new NAME DEVICE...",
		Short: "Create a group; its devices are switched off",
		Long: `Create a group from the given devices. Every member is switched off.
Names that are not paired devices are ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(ctx context.Context, reg *registry.Registry) error {
					return reg.NewGroup(ctx, args[0], args[1:])
				})
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "rm NAME",
		Short: "Switch a group off and delete it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(ctx context.Context, reg *registry.Registry) error {
					return reg.RmGroup(ctx, args[0])
				})
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, true,
				func(_ context.Context, reg *registry.Registry) error {
					return reg.RenameGroup(args[0], args[1])
				})
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List groups and their members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, cmd.ErrOrStderr(), false, false,
				func(_ context.Context, reg *registry.Registry) error {
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "GROUP\tMEMBERS")
					for _, name := range reg.Groups() {
						members, err := reg.Members(name)
						if err != nil {
							return err
						}
						fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(members, ","))
					}
					return w.Flush()
				})
		},
	})
	return group
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pidom %s\n", version)
		},
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func expandConfigPath(path string) (string, error) {
	if env := os.Getenv("PIDOM_CONFIG"); env != "" {
		path = env
	}
	return store.ExpandHome(path)
}
