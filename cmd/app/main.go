package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/invoices/internal/app"
	"github.com/atvirokodosprendimai/invoices/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "invoices",
		Usage: "Invoice searcher service with confirmed row deletion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./invoices.sqlite",
				Sources: cli.EnvVars("INVOICES_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("INVOICES_LOG_LEVEL"),
				Usage:   "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Sources: cli.EnvVars("INVOICES_LOG_FORMAT"),
				Usage:   "Log format (json or console)",
			},
			&cli.StringFlag{
				Name:    "log-output",
				Value:   "stdout",
				Sources: cli.EnvVars("INVOICES_LOG_OUTPUT"),
				Usage:   "Log output (stdout, stderr or a file path)",
			},
		},
		Commands: []*cli.Command{serveCommand(), importCommand()},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootLogger(c *cli.Command) (zerolog.Logger, func(), error) {
	log, closer, err := logging.New(logging.Config{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
		Output: c.String("log-output"),
	})
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return log, func() { _ = closer.Close() }, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("INVOICES_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("INVOICES_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-tenant",
				Value:   "default",
				Sources: cli.EnvVars("INVOICES_BOOTSTRAP_TENANT"),
				Usage:   "Tenant for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("INVOICES_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-rights",
				Value:   "155101,155102,155103,155104",
				Sources: cli.EnvVars("INVOICES_BOOTSTRAP_RIGHTS"),
				Usage:   "Comma separated rights granted to the bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("INVOICES_WEBHOOK_URL"),
				Usage:   "Outbox event webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("INVOICES_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("INVOICES_WEBHOOK_TIMEOUT"),
				Usage:   "Timeout for one webhook delivery",
			},
			&cli.DurationFlag{
				Name:    "outbox-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("INVOICES_OUTBOX_INTERVAL"),
				Usage:   "Outbox polling interval",
			},
			&cli.IntFlag{
				Name:    "outbox-batch",
				Value:   100,
				Sources: cli.EnvVars("INVOICES_OUTBOX_BATCH"),
				Usage:   "Outbox events dispatched per poll",
			},
			&cli.StringFlag{
				Name:    "module-config",
				Sources: cli.EnvVars("INVOICES_MODULE_CONFIG"),
				Usage:   "YAML file overriding the module registration",
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   30 * time.Minute,
				Sources: cli.EnvVars("INVOICES_SESSION_TTL"),
				Usage:   "Idle lifetime of a searcher session",
			},
			&cli.DurationFlag{
				Name:    "mutation-timeout",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("INVOICES_MUTATION_TIMEOUT"),
				Usage:   "Deadline for one background mutation",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log, closeLog, err := rootLogger(c)
			if err != nil {
				return err
			}
			defer closeLog()

			cfg := app.Config{
				Addr:             c.String("addr"),
				DBPath:           c.String("db-path"),
				BootstrapAPIKey:  c.String("bootstrap-api-key"),
				BootstrapTenant:  c.String("bootstrap-tenant"),
				BootstrapKeyName: c.String("bootstrap-key-name"),
				BootstrapRights:  c.String("bootstrap-rights"),
				WebhookURL:       c.String("webhook-url"),
				WebhookSecret:    c.String("webhook-secret"),
				WebhookTimeout:   c.Duration("webhook-timeout"),
				OutboxInterval:   c.Duration("outbox-interval"),
				OutboxBatchSize:  int(c.Int("outbox-batch")),
				ModuleConfigPath: c.String("module-config"),
				SessionTTL:       c.Duration("session-ttl"),
				MutationTimeout:  c.Duration("mutation-timeout"),
			}

			server, closer, err := app.NewServer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Msg("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Upsert invoices from a JSON array file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Required: true,
				Sources:  cli.EnvVars("INVOICES_IMPORT_TENANT"),
				Usage:    "Tenant receiving the invoices",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return errors.New("import expects exactly one file argument")
			}
			log, closeLog, err := rootLogger(c)
			if err != nil {
				return err
			}
			defer closeLog()

			n, err := app.ImportInvoices(ctx, c.String("db-path"), c.String("tenant"), c.Args().First(), log)
			if err != nil {
				log.Error().Err(err).Int("imported", n).Msg("import failed")
				return err
			}
			log.Info().Int("imported", n).Msg("import finished")
			return nil
		},
	}
}
