// Command cloudguard runs the cost intelligence service: an HTTP API for
// forecasting, optimization suggestions and billing import, plus offline
// import and schema commands.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"cloudguard/api"
	"cloudguard/db/postgres"
	"cloudguard/internal/billing"
	"cloudguard/pkg/costs"
	"cloudguard/pkg/platform"
)

func main() {
	app := &cli.App{
		Name:  "cloudguard",
		Usage: "cloud cost forecasting and optimization service",
		Commands: []*cli.Command{
			serveCommand(),
			importCommand(),
			migrateCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "listen port",
				Value:   platform.GetEnvInt("PORT", 8080),
				EnvVars: []string{"PORT"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "environment name (development enables console logging)",
				Value:   platform.GetEnv("APP_ENV", "production"),
				EnvVars: []string{"APP_ENV"},
			},
		},
		Action: func(c *cli.Context) error {
			log := platform.NewLogger(c.String("env"))

			store, err := openStore(c, log)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
			if err := store.EnsureSchema(ctx); err != nil {
				cancel()
				return err
			}
			cancel()

			cfg := api.DefaultConfig()
			cfg.Port = c.Int("port")

			server := api.NewServer(api.Backend{
				History:     store,
				Predictions: store,
				Suggestions: store,
				Inventory:   store,
				Pinger:      store,
			}, cfg, log)
			return server.Start(c.Context)
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "import a billing CSV export into cost history",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "path to the billing CSV export",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "dialect",
				Usage: "billing export dialect: cost-explorer, billing-export or cost-management",
				Value: string(billing.DialectCostExplorer),
			},
			&cli.Int64Flag{
				Name:     "org",
				Usage:    "organization id the records belong to",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "env",
				Value:   platform.GetEnv("APP_ENV", "production"),
				EnvVars: []string{"APP_ENV"},
			},
		},
		Action: func(c *cli.Context) error {
			log := platform.NewLogger(c.String("env"))

			orgID := c.Int64("org")
			if orgID <= 0 {
				return fmt.Errorf("org must be a positive organization id")
			}

			dialect, err := billing.ParseDialect(c.String("dialect"))
			if err != nil {
				return err
			}

			result, err := billing.ParseFile(dialect, c.String("file"), orgID)
			if err != nil {
				return err
			}
			if result.Accepted == 0 {
				return fmt.Errorf("%w: %s (%d rows dropped)", costs.ErrNoValidRows, c.String("file"), result.Dropped)
			}

			store, err := openStore(c, log)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
			defer cancel()
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			inserted, err := store.Append(ctx, result.Records)
			if err != nil {
				return err
			}

			log.Info().
				Int("imported", inserted).
				Int("dropped", result.Dropped).
				Int64("organization_id", orgID).
				Msg("billing import complete")
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create the database schema if it does not exist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "postgres connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "env",
				Value:   platform.GetEnv("APP_ENV", "production"),
				EnvVars: []string{"APP_ENV"},
			},
		},
		Action: func(c *cli.Context) error {
			log := platform.NewLogger(c.String("env"))

			store, err := openStore(c, log)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
			defer cancel()
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}

func openStore(c *cli.Context, log zerolog.Logger) (*postgres.Store, error) {
	dsn := c.String("database-url")
	if dsn == "" {
		return nil, fmt.Errorf("database-url is required (or set DATABASE_URL)")
	}
	store, err := postgres.NewStore(dsn, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return store, nil
}
