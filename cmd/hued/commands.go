package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/me-box/databox-driver-phillipshue/internal/app"
	"github.com/me-box/databox-driver-phillipshue/internal/config"
	"github.com/me-box/databox-driver-phillipshue/internal/db"
	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/kv"
	"github.com/me-box/databox-driver-phillipshue/internal/settings"
)

type configKey struct{}

// NewRootCommand creates the root command. Running it without a subcommand
// starts the driver.
func NewRootCommand(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "hued",
		Short:         "Philips Hue driver: mirrors lights and sensors into the data store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Error().Err(err).Str("config", configPath).Msg("Failed to load configuration")
				return err
			}
			setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriver(configFrom(cmd), configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	cmd.AddCommand(newDiscoverCommand())
	cmd.AddCommand(newPairCommand())

	return cmd
}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(configKey{}).(*config.Config)
}

func runDriver(cfg *config.Config, configPath string) error {
	log.Info().Str("config", configPath).Msg("Starting hued")

	application, err := app.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create application")
		return err
	}

	// Create context that cancels on shutdown signal
	ctx := app.SignalContext()

	if err := application.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start application")
		application.Stop()
		return err
	}

	application.Wait()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	return nil
}

func newDiscoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List Hue bridges on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)

			bridges, err := hue.NewDiscoverer(cfg.Hue.DiscoveryTimeout.Duration()).Discover(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range bridges {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", b.Address, b.ID, b.Source)
			}
			return nil
		},
	}
}

func newPairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pair [address]",
		Short: "Pair with a bridge and save its credential",
		Long: "Press the link button on the bridge first. Without an address the " +
			"first discovered bridge is used.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			ctx := cmd.Context()

			pairing := hue.NewPairing(cfg.Hue.AppName, cfg.Hue.Timeout.Duration(), cfg.Hue.DiscoveryTimeout.Duration())

			var address string
			if len(args) == 1 {
				address = args[0]
			} else {
				bridges, err := pairing.Discover(ctx)
				if err != nil {
					return err
				}
				address = bridges[0].Address
			}

			credential, err := pairing.Pair(ctx, address)
			if err != nil {
				return err
			}

			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			st := settings.NewStore(kv.NewSQLite(database.DB))
			if err := st.Set(ctx, settings.Settings{Hostname: address, Credential: credential}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s\n", address)
			return nil
		},
	}
}
