// Command podctl is an operator CLI for querying a running ShardManager
// and nudging its rebalancing algorithm out of band.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shardmesh/cluster/internal/httpjson"
	"github.com/shardmesh/cluster/internal/identity"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:   "podctl",
		Short: "Query and administer a running ShardManager",
	}
	root.PersistentFlags().StringVar(&addr, "addr", "localhost:7070", "host:port of the ShardManager process")

	root.AddCommand(newAssignmentsCmd(&addr))
	root.AddCommand(newPodsCmd(&addr))
	root.AddCommand(newRebalanceCmd(&addr))

	return root
}

type wireAssignment struct {
	ShardID int    `json:"shardId"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

func newAssignmentsCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assignments",
		Short: "Print the current shard-to-pod assignment map",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []wireAssignment
			if err := httpjson.GetJSON(cmd.Context(), "http://"+*addr+"/assignments", &entries); err != nil {
				return fmt.Errorf("podctl: fetching assignments: %w", err)
			}

			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s:%d\n", e.ShardID, e.Host, e.Port)
			}
			return nil
		},
	}
}

func newPodsCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pods",
		Short: "List the pods currently registered with the ShardManager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pods []identity.PodAddress
			if err := httpjson.GetJSON(cmd.Context(), "http://"+*addr+"/pods", &pods); err != nil {
				return fmt.Errorf("podctl: fetching pods: %w", err)
			}

			for _, pod := range pods {
				fmt.Fprintln(cmd.OutOrStdout(), pod.String())
			}
			return nil
		},
	}
}

func newRebalanceCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Force an immediate rebalance pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := httpjson.PostJSON(cmd.Context(), "http://"+*addr+"/rebalance", struct{}{}, nil); err != nil {
				return fmt.Errorf("podctl: triggering rebalance: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rebalance triggered")
			return nil
		},
	}
}
