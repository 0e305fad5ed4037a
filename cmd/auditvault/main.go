// auditvault is the operator CLI for the audit sink: key inspection,
// promotion and deprecation, re-encryption jobs, and chain verification.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spounge-ai/auditvault/internal/infra/config"
	"github.com/spounge-ai/auditvault/internal/wiring"
)

var (
	configPath string
	actor      string

	rootCmd = &cobra.Command{
		Use:           "auditvault",
		Short:         "Operate the encrypted audit sink",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "actor recorded on mutating operations")

	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(safePromoteCmd)
	rootCmd.AddCommand(deprecateCmd)
	rootCmd.AddCommand(reencryptCmd)
	rootCmd.AddCommand(verifyCmd)
}

// withDeps wires the full dependency graph, runs fn, and tears down.
func withDeps(fn func(ctx context.Context, deps *wiring.Dependencies) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := wiring.NewLogger("warn")
	ctx := context.Background()
	deps, err := wiring.Provide(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(ctx, deps)
}

func resolveActor() string {
	if actor != "" {
		return actor
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
