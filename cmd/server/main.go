package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paylane/settlement/internal/config"
	"github.com/paylane/settlement/internal/domain"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "settlementd",
		Short:   "Settlement and balance ledger service",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(reconcileCmd(&configPath))
	rootCmd.AddCommand(balanceCmd(&configPath))
	rootCmd.AddCommand(stuckCmd(&configPath))
	rootCmd.AddCommand(effectsCmd(&configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func reconcileCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <transaction-ref> <provider-status>",
		Short: "Apply a provider status to an order by hand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app) error {
				res, err := a.reconciler.Reconcile(cmd.Context(), args[0], args[1], domain.SourceManual)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func balanceCmd(configPath *string) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "balance <payee-id>",
		Short: "Print the derived balance of a payee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app) error {
				b, err := a.ledger.Compute(cmd.Context(), args[0], tenant)
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant whose fee definitions apply")
	return cmd
}

func stuckCmd(configPath *string) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List anticipation batches left in processing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app) error {
				age := olderThan
				if age == 0 {
					age = a.cfg.StuckBatchAge
				}
				batches, err := a.anticipation.StuckBatches(cmd.Context(), age)
				if err != nil {
					return err
				}
				return printJSON(cmd, batches)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum batch age (default from config)")
	return cmd
}

func effectsCmd(configPath *string) *cobra.Command {
	var (
		olderThan time.Duration
		retry     bool
	)
	cmd := &cobra.Command{
		Use:   "effects",
		Short: "List or retry status transitions whose side effects failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(a *app) error {
				if retry {
					orders, open, err := a.reconciler.RetryOpenEffects(cmd.Context(), olderThan)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]int{"orders": orders, "open_effects": open})
				}
				effects, err := a.reconciler.OpenEffects(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				return printJSON(cmd, effects)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum effect age")
	cmd.Flags().BoolVar(&retry, "retry", false, "Re-run the listed effects")
	return cmd
}

func withApp(configPath string, fn func(a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cfg.NewLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stdout)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.seed(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("settlement ledger listening",
		"addr", "http://localhost:"+cfg.Port, "api", "http://localhost:"+cfg.Port+"/api/v1")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
