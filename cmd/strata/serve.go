package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open a ledger as a transactor and expose metrics",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "./data", "Data directory for the bolt backend")
	serveCmd.Flags().String("network", "local", "Network name")
	serveCmd.Flags().String("ledger", "default/main", "Ledger name")
	serveCmd.Flags().String("metrics-addr", ":9090", "Metrics listen address")
	serveCmd.Flags().Int64("memory", 64<<20, "Node cache byte budget")
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	memory, _ := cmd.Flags().GetInt64("memory")
	network, _ := cmd.Flags().GetString("network")
	ledger, _ := cmd.Flags().GetString("ledger")

	opts.Transactor = true
	opts.StorageBackend = config.BackendBolt
	opts.StoragePath = dataDir
	opts.Memory = memory
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	ctx := context.Background()
	conn, err := session.Connect(ctx, opts, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess, err := conn.Session(ctx, network, ledger)
	if err != nil {
		return err
	}
	d := sess.DB()
	log.Info(fmt.Sprintf("ledger %s/%s open at block %d (t %d)", network, ledger, d.Block, d.T))

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server failed", err)
		}
	}()
	log.Info("metrics listening on " + metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadOptions(cmd *cobra.Command) (config.Options, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}
