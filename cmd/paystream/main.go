package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cfgpkg "github.com/rzbill/paystream/internal/config"
	"github.com/rzbill/paystream/internal/metrics"
	"github.com/rzbill/paystream/internal/runtime"
	httpserver "github.com/rzbill/paystream/internal/server/http"
	pebblestore "github.com/rzbill/paystream/internal/storage/pebble"
	logpkg "github.com/rzbill/paystream/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	level := os.Getenv("PAYSTREAM_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	rootCmd := &cobra.Command{
		Use:   "paystream",
		Short: "Paystream ledger CLI",
		Long:  "Paystream is a single-binary payment stream ledger. This CLI manages the server and basic operations.",
	}

	rootCmd.AddCommand(newServerCommand(logger))
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newPaymentsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerCommand(logger logpkg.Logger) *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the paystream server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if fsyncMode != "" {
				cfg.Fsync = fsyncMode
			}

			mode, err := pebblestore.ParseFsyncMode(cfg.Fsync)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			m := metrics.New()
			rt, err := runtime.Open(runtime.Options{
				DataDir:       cfg.DataDir,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
				Metrics:       m,
			})
			if err != nil {
				return fmt.Errorf("open runtime: %w", err)
			}
			defer rt.Close()

			srv := httpserver.New(rt, httpserver.Options{Metrics: m, Logger: logger})
			defer srv.Close()
			if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	startCmd.Flags().String("config", os.Getenv("PAYSTREAM_CONFIG"), "Path to JSON config file")
	startCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	startCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	startCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	startCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms (default 5)")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

func newInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the ledger (host account only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			deposit, _ := cmd.Flags().GetString("deposit")
			return postJSON("/v1/initialize", map[string]any{"deposit": deposit})
		},
	}
	initCmd.Flags().String("deposit", "1", "Initialization deposit (must be exactly 1)")
	return initCmd
}

func newPaymentsCommand() *cobra.Command {
	paymentsCmd := &cobra.Command{Use: "payments", Short: "Payment stream operations"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending payment stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			receiver, _ := cmd.Flags().GetString("receiver")
			days, _ := cmd.Flags().GetUint64("period-days")
			paymentAmount, _ := cmd.Flags().GetString("payment")
			deposit, _ := cmd.Flags().GetString("deposit")
			return postJSON("/v1/payments/create", map[string]any{
				"receiver":       receiver,
				"period_days":    days,
				"payment_amount": paymentAmount,
				"deposit":        deposit,
			})
		},
	}
	createCmd.Flags().String("receiver", "", "Receiving account")
	createCmd.Flags().Uint64("period-days", 1, "Vesting period in whole days")
	createCmd.Flags().String("payment", "", "Amount vested per period")
	createCmd.Flags().String("deposit", "", "Total escrowed amount")

	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending stream (receiver only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetUint64("id")
			return postJSON("/v1/payments/process", map[string]any{"decision": "approve", "stream_id": id})
		},
	}
	approveCmd.Flags().Uint64("id", 0, "Stream id")

	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim vested periods (receiver only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetUint64("id")
			return postJSON("/v1/payments/claim", map[string]any{"stream_id": id})
		},
	}
	claimCmd.Flags().Uint64("id", 0, "Stream id")

	rejectCmd := &cobra.Command{
		Use:   "reject",
		Short: "Cancel a stream from either side",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetUint64("id")
			role, _ := cmd.Flags().GetString("role")
			return postJSON("/v1/payments/reject", map[string]any{"stream_id": id, "role": role})
		},
	}
	rejectCmd.Flags().Uint64("id", 0, "Stream id")
	rejectCmd.Flags().String("role", "issuer", "Caller role: issuer|receiver")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List streams for the calling account",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			q := "/v1/payments/list?role=" + role
			if filter != "" {
				q += "&filter=" + filter
			}
			if limit > 0 {
				q += "&limit=" + strconv.Itoa(limit)
			}
			return getJSON(q)
		},
	}
	listCmd.Flags().String("role", "issuer", "Caller role: issuer|receiver")
	listCmd.Flags().String("filter", "", "CEL filter expression")
	listCmd.Flags().Int("limit", 0, "Maximum streams to return")

	paymentsCmd.AddCommand(createCmd, approveCmd, claimCmd, rejectCmd, listCmd)
	return paymentsCmd
}

func postJSON(path string, body any) error {
	b, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, apiURL()+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func getJSON(path string) error {
	req, err := http.NewRequest(http.MethodGet, apiURL()+path, nil)
	if err != nil {
		return err
	}
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	if token := os.Getenv("PAYSTREAM_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if account := os.Getenv("PAYSTREAM_ACCOUNT"); account != "" {
		req.Header.Set("X-Paystream-Account", account)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	fmt.Println("status:", resp.Status)
	_, _ = io.Copy(os.Stdout, resp.Body)
	return nil
}

func apiURL() string {
	if v := os.Getenv("PAYSTREAM_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
