package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spounge-ai/auditvault/internal/domain"
	"github.com/spounge-ai/auditvault/internal/wiring"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show ring health: configured kids, envelope counts, lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
			health, err := deps.Rotation.RingHealth(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Active kid: %s\n\n", color.GreenString(health.ActiveKid))

			kids := make([]string, 0, len(health.CountsByKid))
			for kid := range health.CountsByKid {
				kids = append(kids, kid)
			}
			sort.Strings(kids)

			for _, kid := range kids {
				label := kid
				if kid == "" {
					label = "(no kid)"
				}
				fmt.Printf("  %-24s %d records\n", label, health.CountsByKid[kid])
			}
			for _, kid := range health.UnknownKids {
				color.Red("  %s is present in the store but missing from the ring", kid)
			}
			for _, kid := range health.DeprecatedPastGrace {
				color.Yellow("  %s is deprecated past its grace window and still holds records", kid)
			}
			return nil
		})
	},
}

var (
	deprecateGraceDays int

	deprecateCmd = &cobra.Command{
		Use:   "deprecate <kid>",
		Short: "Deprecate a key with a grace window (decryption keeps working)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
				until := time.Now().UTC().Add(time.Duration(deprecateGraceDays) * 24 * time.Hour)
				if err := deps.Rotation.Deprecate(ctx, args[0], until, resolveActor()); err != nil {
					return err
				}
				color.Yellow("Deprecated %s until %s", args[0], until.Format(time.RFC3339))
				return nil
			})
		},
	}
)

func init() {
	deprecateCmd.Flags().IntVar(&deprecateGraceDays, "grace-days", 30, "days the key remains in grace")
}

func printState(state *domain.KeyringState) {
	fmt.Printf("Active kid: %s (version %d, promoted by %s at %s)\n",
		color.GreenString(state.ActiveKid),
		state.Version,
		state.PromotedBy,
		state.PromotedAt.Format(time.RFC3339))
}
