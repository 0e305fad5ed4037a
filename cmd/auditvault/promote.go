package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spounge-ai/auditvault/internal/wiring"
)

var (
	promoteGraceDays int

	promoteCmd = &cobra.Command{
		Use:   "promote <kid>",
		Short: "Make a configured key the active encryption key",
		Long: `Switches the durable active-key pointer to the given kid. New audit
events encrypt under it within the active-kid cache TTL. The previously
active key is deprecated with a grace window; records written under it
keep decrypting until a re-encryption job drains them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				grace := time.Duration(promoteGraceDays) * 24 * time.Hour
				state, err := deps.Rotation.Promote(ctx, args[0], resolveActor(), grace)
				if err != nil {
					return err
				}
				printState(state)
				return nil
			})
		},
	}
)

var (
	safePromoteGraceDays int

	safePromoteCmd = &cobra.Command{
		Use:   "safe-promote <kid>",
		Short: "Generate a fresh AES-256 key, install it and promote it",
		Long: `Runbook for rotating onto brand-new material: generates a random
AES-256 key, installs it into the in-process overlay, promotes it, and
prints the config snippet to persist. The overlay does not survive a
restart; persist the snippet before restarting anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				grace := time.Duration(safePromoteGraceDays) * 24 * time.Hour
				result, err := deps.Rotation.SafePromote(ctx, args[0], resolveActor(), grace)
				if err != nil {
					return err
				}

				printState(result.State)
				fmt.Println()
				color.Yellow("Persist this key in configuration before any restart:")
				fmt.Printf("\ncrypto:\n  keys:\n    - kid: %q\n      key: %q\n", result.Kid, result.KeyBase64)
				return nil
			})
		},
	}
)

func init() {
	promoteCmd.Flags().IntVar(&promoteGraceDays, "grace-days", 30, "grace window for the previously active key")
	safePromoteCmd.Flags().IntVar(&safePromoteGraceDays, "grace-days", 30, "grace window for the previously active key")
}
