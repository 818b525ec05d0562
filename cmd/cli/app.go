package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/keshon/botcore/internal/config"
	"github.com/keshon/botcore/internal/logger"
	"github.com/keshon/botcore/internal/plugins/status"
	"github.com/keshon/botcore/internal/services"
	"github.com/keshon/botcore/internal/storage"
)

// App is the offline administration tool. It edits the same store the bot
// uses, so run it while the bot is stopped.
type App struct {
	StoragePath string
	Disabled    []string
}

func NewApp() *App {
	app := &App{StoragePath: "datastore.json"}
	if cfg, err := config.Load(); err == nil {
		app.StoragePath = cfg.StoragePath
		app.Disabled = cfg.FeaturesDisabled
	}
	return app
}

// CreateRootCommand creates and configures the root command
func (app *App) CreateRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "botcore-cli",
		Short:         "Manage the bot's ban list, feature switches and command history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&app.StoragePath, "storage", app.StoragePath, "Path to the bot datastore")

	app.addBanCommands(rootCmd)
	app.addFeatureCommands(rootCmd)
	app.addHistoryCommand(rootCmd)
	return rootCmd
}

func (app *App) withStore(fn func(*storage.Storage) error) error {
	store, err := storage.New(app.StoragePath)
	if err != nil {
		return err
	}
	if err := fn(store); err != nil {
		_ = store.Close()
		return err
	}
	return store.Close()
}

func (app *App) addBanCommands(root *cobra.Command) {
	bans := &cobra.Command{Use: "bans", Short: "Inspect and edit the ban list"}

	bans.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List banned users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withStore(func(s *storage.Storage) error {
				ids, err := s.Banned()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d banned\n", len(ids))
				return nil
			})
		},
	})

	bans.AddCommand(&cobra.Command{
		Use:   "add <user-id>",
		Short: "Ban a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateID(args[0]); err != nil {
				return err
			}
			return app.withStore(func(s *storage.Storage) error {
				changed, err := s.Ban(args[0])
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(cmd.OutOrStdout(), "user %s is already banned\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s banned\n", args[0])
				return nil
			})
		},
	})

	bans.AddCommand(&cobra.Command{
		Use:   "remove <user-id>",
		Short: "Unban a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withStore(func(s *storage.Storage) error {
				changed, err := s.Unban(args[0])
				if err != nil {
					return err
				}
				if !changed {
					fmt.Fprintf(cmd.OutOrStdout(), "user %s is not banned\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s unbanned\n", args[0])
				return nil
			})
		},
	})

	root.AddCommand(bans)
}

func (app *App) addFeatureCommands(root *cobra.Command) {
	features := &cobra.Command{Use: "features", Short: "Inspect and switch features"}

	features.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every feature switch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withStore(func(s *storage.Storage) error {
				settings, err := services.NewSettingsStore(s, app.Disabled, logger.Discard())
				if err != nil {
					return err
				}
				for _, f := range status.Features {
					state := "on"
					if !settings.IsFeatureEnabled(f.Key) {
						state = "off"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-16s %s\n", f.Key, f.Name, state)
				}
				return nil
			})
		},
	})

	for _, enabled := range []bool{true, false} {
		use, short := "enable <feature>", "Switch a feature on"
		if !enabled {
			use, short = "disable <feature>", "Switch a feature off"
		}
		features.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, ok := status.MatchFeature(args[0])
				if !ok {
					return fmt.Errorf("unknown feature %q", args[0])
				}
				return app.withStore(func(s *storage.Storage) error {
					if err := s.SetFeature(f.Key, enabled); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s set to %t\n", f.Key, enabled)
					return nil
				})
			},
		})
	}

	root.AddCommand(features)
}

func (app *App) addHistoryCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "history <group-id>",
		Short: "Show the latest commands run in a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withStore(func(s *storage.Storage) error {
				records, err := s.FetchCommandHistory(args[0])
				if err != nil {
					return err
				}
				for _, r := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s %-20s %s\n", r.Datetime.Format("2006-01-02 15:04:05"), r.Username, r.Command, r.Param)
				}
				return nil
			})
		},
	})
}

func validateID(id string) error {
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return fmt.Errorf("user id must be numeric, got %q", id)
	}
	return nil
}
