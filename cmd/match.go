package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/config"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/dataset"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/linkage"
	"github.com/tur-learning/geographic-coordinates-match-li-veronica/internal/sink"
)

var (
	matchHistorical  string
	matchReference   string
	matchArchive     string
	matchMode        string
	matchDistance    string
	matchMaxDistance float64
	matchWorkers     int
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Link historical features to reference features and write the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyMatchFlags(cmd, cfg)
		if err := cfg.Validate("match"); err != nil {
			return err
		}

		res, err := runMatch(ctx, cfg)
		if err != nil {
			return err
		}

		cmd.Printf("run %s: %d unresolved, %d matched, %d unmatched\n",
			res.RunID, res.Output.Stats.Unresolved, res.Output.Stats.Matched, res.Output.Stats.Unmatched)
		return nil
	},
}

func init() {
	f := matchCmd.Flags()
	f.StringVar(&matchHistorical, "historical", "", "historical dataset path (default from config)")
	f.StringVar(&matchReference, "reference", "", "reference dataset path (default from config)")
	f.StringVar(&matchArchive, "archive", "", "ZIP archive holding both datasets")
	f.StringVar(&matchMode, "mode", "", "proximity, fuzzy or combined (default from config)")
	f.StringVar(&matchDistance, "distance", "", "planar or geodesic (default from config)")
	f.Float64Var(&matchMaxDistance, "max-distance", 0, "reject matches farther than this (0 disables)")
	f.IntVar(&matchWorkers, "workers", 0, "number of matching workers (default from config)")
	rootCmd.AddCommand(matchCmd)
}

// applyMatchFlags overrides configuration with explicitly set flags.
func applyMatchFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("historical") {
		c.Input.Historical = matchHistorical
	}
	if flags.Changed("reference") {
		c.Input.Reference = matchReference
	}
	if flags.Changed("archive") {
		c.Input.Archive = matchArchive
	}
	if flags.Changed("mode") {
		c.Match.Mode = matchMode
	}
	if flags.Changed("distance") {
		c.Match.DistanceModel = matchDistance
	}
	if flags.Changed("max-distance") {
		c.Match.MaxDistance = matchMaxDistance
	}
	if flags.Changed("workers") {
		c.Match.Workers = matchWorkers
	}
}

type matchResult struct {
	RunID  string
	Output *linkage.Output
}

// runMatch loads both datasets, links them and writes every configured output.
func runMatch(ctx context.Context, c *config.Config) (*matchResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID))

	linker, err := linkage.New(c.Linkage())
	if err != nil {
		return nil, err
	}

	historical, reference, err := loadInputs(ctx, c.Input)
	if err != nil {
		return nil, err
	}

	out, err := linker.Run(ctx, historical.Features, reference.Features)
	if err != nil {
		return nil, eris.Wrap(err, "match: link")
	}

	sinks, closeStore, err := buildSinks(ctx, c)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	// Outputs are written even after cancellation so partial work survives.
	if err := sinks.Write(context.WithoutCancel(ctx), runID, out); err != nil {
		return nil, eris.Wrap(err, "match: write outputs")
	}

	if c.Output.Report != "" {
		report := sink.Report{
			RunID:      runID,
			StartedAt:  started.UTC(),
			Duration:   time.Since(started).Round(time.Millisecond).String(),
			Mode:       string(linker.Config().Mode),
			Distance:   string(linker.Config().DistanceModel),
			Historical: historical.Path,
			Reference:  reference.Path,
			Outputs:    outputPaths(c.Output),
			Stats:      out.Stats,
		}
		if err := sink.WriteReport(c.Output.Report, report); err != nil {
			return nil, err
		}
	}

	log.Info("match: complete",
		zap.Int("matched", out.Stats.Matched),
		zap.Int("unmatched", out.Stats.Unmatched),
		zap.Bool("partial", out.Stats.Partial),
		zap.Duration("elapsed", time.Since(started)),
	)
	return &matchResult{RunID: runID, Output: out}, nil
}

func loadInputs(ctx context.Context, in config.InputConfig) (*dataset.Dataset, *dataset.Dataset, error) {
	if in.Archive != "" {
		sets, err := dataset.LoadFromArchive(ctx, in.Archive, []string{in.Historical, in.Reference}, in.ExtractDir)
		if err != nil {
			return nil, nil, err
		}
		h, ok := sets[in.Historical]
		if !ok {
			return nil, nil, eris.Errorf("match: %q is not a loadable dataset", in.Historical)
		}
		r, ok := sets[in.Reference]
		if !ok {
			return nil, nil, eris.Errorf("match: %q is not a loadable dataset", in.Reference)
		}
		return h, r, nil
	}

	h, err := dataset.Load(ctx, in.Historical)
	if err != nil {
		return nil, nil, err
	}
	r, err := dataset.Load(ctx, in.Reference)
	if err != nil {
		return nil, nil, err
	}
	return h, r, nil
}

// buildSinks assembles the file outputs and the optional database store.
func buildSinks(ctx context.Context, c *config.Config) (sink.Multi, func(), error) {
	var sinks sink.Multi
	if c.Output.JSON != "" {
		sinks = append(sinks, sink.JSONFile{Path: c.Output.JSON})
	}
	if c.Output.GeoJSON != "" {
		sinks = append(sinks, sink.GeoJSONFile{Path: c.Output.GeoJSON})
	}
	if c.Output.XLSX != "" {
		sinks = append(sinks, sink.XLSXFile{Path: c.Output.XLSX})
	}

	noop := func() {}
	switch c.Store.Driver {
	case "", "none":
		return sinks, noop, nil
	case "sqlite":
		st, err := sink.NewSQLite(c.Store.DSN)
		if err != nil {
			return nil, noop, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, noop, err
		}
		return append(sinks, st), func() { st.Close() }, nil //nolint:errcheck
	case "postgres":
		st, err := sink.NewPostgres(ctx, c.Store.DSN, c.Store.Table)
		if err != nil {
			return nil, noop, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, noop, err
		}
		return append(sinks, st), st.Close, nil
	default:
		return nil, noop, eris.Errorf("match: unknown store driver %q", c.Store.Driver)
	}
}

func outputPaths(o config.OutputConfig) map[string]string {
	paths := make(map[string]string)
	for k, v := range map[string]string{"json": o.JSON, "geojson": o.GeoJSON, "xlsx": o.XLSX} {
		if v != "" {
			paths[k] = v
		}
	}
	return paths
}
