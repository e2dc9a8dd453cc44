package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the db-root, stats, and garbage for a block",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().String("data-dir", "./data", "Data directory for the bolt backend")
	inspectCmd.Flags().String("network", "local", "Network name")
	inspectCmd.Flags().String("ledger", "default/main", "Ledger name")
	inspectCmd.Flags().Int64("block", 0, "Block to inspect (0 = latest)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	conn, _, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer conn.Close()

	network, _ := cmd.Flags().GetString("network")
	ledger, _ := cmd.Flags().GetString("ledger")
	block, _ := cmd.Flags().GetInt64("block")

	ctx := context.Background()
	root, err := conn.Reader().LoadRoot(ctx, network, ledger, block)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	garbage, err := conn.Reader().ReadGarbage(ctx, network, ledger, root.Block)
	if err != nil {
		return err
	}
	if garbage != nil {
		fmt.Printf("garbage: %d superseded nodes\n", len(garbage.Garbage))
	}
	return nil
}
