package main

import (
	"context"
	"fmt"

	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/registry"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove this node's entries and services from the registry",
	Long: `Purge deletes every kv entry this node publishes and deregisters its
services. Use it after a node is decommissioned without a clean shutdown
and its entries were written with --no-lease.

Deletion is by prefix. Router and middleware keys are matched on
"<node>-", so purging node "gw1" also removes the routers of a node
named "gw1-b".`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().Bool("keep-services", false, "Only delete kv entries")
}

func runPurge(cmd *cobra.Command, args []string) error {
	keepServices, _ := cmd.Flags().GetBool("keep-services")

	client, err := newRegistry()
	if err != nil {
		return err
	}
	b, err := newBuilder()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	return purge(ctx, client, b, !keepServices)
}

// purge deletes the node's kv subtrees and, when services is set,
// deregisters its services. It attempts every step and reports all failures.
func purge(ctx context.Context, client registry.Client, b builder.Builder, services bool) error {
	logger := log.WithComponent("main")
	var errs *multierror.Error

	if kv, ok := b.(*builder.KVBuilder); ok {
		for _, prefix := range kv.NodePrefixes() {
			if err := client.DeleteTree(ctx, prefix); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("delete %s: %w", prefix, err))
				continue
			}
			logger.Info().Str("prefix", prefix).Msg("Deleted")
		}
	}

	if services {
		if err := deregister(ctx, client, b); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
