// railpanel analyzes TestRail builds of a release milestone: status mix per
// build and platform, and the sections where failures concentrate.
//
// Usage:
//
//	railpanel analyze --milestone switch-18 [--builds 5] [--sections] [--format table|json]
//	railpanel serve
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/railpanel/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "railpanel",
	Short: "Build-over-build TestRail analysis for a release milestone",
	Long: `railpanel pulls the most recent builds of a TestRail milestone, maps their
results onto pass/fail/error/blocked/skip, tags each build with the switch
platform named in it and caches the per-build figures locally.

Connection settings come from RAILPANEL_* environment variables or a .env file.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		slog.SetDefault(newLogger(cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment is read")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
