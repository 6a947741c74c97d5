package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/config"
)

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "geomatch",
	Short: "Link historical map features to contemporary ones",
	Long: `geomatch links the features of a historical map (such as the Nolli map of
Rome) to a contemporary reference dataset (such as OpenStreetMap).

Every geometry is reduced to one representative point. Each historical
feature without a Match_Score is linked to its nearest reference feature,
by name similarity, or both. Results are written as a flat JSON list, a
paired GeoJSON collection and optional spreadsheet and database sinks.

Settings come from geomatch.yaml and GEOMATCH_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.Log.Level = logLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "geomatch: init logger")
		}
		zap.L().Debug("geomatch: config loaded", zap.String("command", cmd.Name()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
