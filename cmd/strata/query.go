package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/db"
	"github.com/cuemby/strata/pkg/query"
	"github.com/cuemby/strata/pkg/session"
)

var queryCmd = &cobra.Command{
	Use:   "query <query-file>",
	Short: "Run a JSON query against a ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var transactCmd = &cobra.Command{
	Use:   "transact <docs-file>",
	Short: "Stage and commit JSON documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runTransact,
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, transactCmd} {
		c.Flags().String("data-dir", "./data", "Data directory for the bolt backend")
		c.Flags().String("network", "local", "Network name")
		c.Flags().String("ledger", "default/main", "Ledger name")
	}
	queryCmd.Flags().String("at", "", "Time-travel: block number, negative t, or RFC3339 instant")
}

func openSession(cmd *cobra.Command, transactor bool) (*session.Connection, *session.Session, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, nil, err
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	network, _ := cmd.Flags().GetString("network")
	ledger, _ := cmd.Flags().GetString("ledger")

	opts.Transactor = transactor
	opts.StorageBackend = config.BackendBolt
	opts.StoragePath = dataDir

	ctx := context.Background()
	conn, err := session.Connect(ctx, opts, nil)
	if err != nil {
		return nil, nil, err
	}
	sess, err := conn.Session(ctx, network, ledger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, sess, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	conn, sess, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read query file: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}

	ctx := context.Background()
	d := sess.DB()
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		var refRaw any = at
		if n, err := strconv.ParseInt(at, 10, 64); err == nil {
			refRaw = float64(n)
		}
		ref, err := db.ParseTimeRef(refRaw)
		if err != nil {
			return err
		}
		d, err = d.TimeTravel(ctx, conn.Reader(), ref)
		if err != nil {
			return err
		}
	}

	result, err := query.Run(ctx, d, raw)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTransact(cmd *cobra.Command, args []string) error {
	conn, sess, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read docs file: %w", err)
	}
	docs, err := db.ParseDocuments(data)
	if err != nil {
		return err
	}

	committed, err := sess.Transact(context.Background(), docs, db.StageOpts{})
	if err != nil {
		return err
	}
	fmt.Printf("committed block %d (t %d)\n", committed.Block, committed.T)
	return nil
}
