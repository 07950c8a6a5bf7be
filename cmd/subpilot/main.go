package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/subpilot/subpilot/internal/profile"
	"github.com/subpilot/subpilot/internal/version"
	"github.com/subpilot/subpilot/server"
	"github.com/subpilot/subpilot/store"
	"github.com/subpilot/subpilot/store/db"
)

const (
	greetingBanner = `subpilot %s - decision engine for subscription agents
`
)

var (
	instanceProfile *profile.Profile

	rootCmd = &cobra.Command{
		Use:   "subpilot",
		Short: "An agent decision and approval engine for subscription businesses",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx); err != nil {
				slog.Error("failed to run server", "error", err)
				os.Exit(1)
			}
		},
	}
)

func run(ctx context.Context) error {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return fmt.Errorf("failed to create db driver: %w", err)
	}

	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	s, err := server.New(ctx, instanceProfile, storeInstance)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf(greetingBanner, instanceProfile.Version)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutting down")
		return s.Shutdown(context.Background())
	})

	err = group.Wait()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("data", "")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("subpilot")
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		instanceProfile = &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid profile", "error", err)
			os.Exit(1)
		}
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
