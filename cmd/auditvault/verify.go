package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spounge-ai/auditvault/internal/wiring"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute and verify the full audit hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(func(ctx context.Context, deps *wiring.Dependencies) error {
			if err := deps.Audit.VerifyChain(ctx); err != nil {
				color.Red("Chain verification FAILED")
				return err
			}
			color.Green("Chain verified: every record decrypts and every hash links")
			return nil
		})
	},
}
