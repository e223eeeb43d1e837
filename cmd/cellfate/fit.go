package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cellfate/adapters/excel"
	"cellfate/adapters/rbridge"
	"cellfate/domain/dataset"
	"cellfate/internal/batch"
	"cellfate/internal/regress"
	"cellfate/internal/trend"
	"cellfate/ports"
)

type fitFlags struct {
	obs            []string
	lineageKey     string
	lineageColumns []string
	lin            string
	dataKey        string
	timeKey        string
	model          string
	nTestPoints    int
	threshold      float64
	confInt        bool
	gridSearch     bool
	degree         int
	bandwidth      float64
	nSplines       int
	family         string
	store          bool
	out            string
}

func newFitCmd(a *app) *cobra.Command {
	f := &fitFlags{}

	cmd := &cobra.Command{
		Use:   "fit [data-file] [genes...]",
		Short: "Fit gene expression trends along pseudotime",
		Long: `Fit one trend model per gene, weighting every cell by its membership in
the requested lineage, and write the predicted trend on an evenly spaced grid.

The data file has a cell column, the annotation columns named by --obs, the
lineage columns named by --lineage-columns and one column per gene.

Models: spline (penalized B-splines), poly, kernel and mgcv (requires Rscript
with the mgcv package). ols ignores cell weights, so it is only fitted when
--lineage is empty.

Example: cellfate fit cells.csv Gata1 Sox2 --obs latent_time --lineage-columns Ery,Mono --lineage Ery`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd, a, f, args[0], args[1:])
		},
	}

	cmd.Flags().StringSliceVar(&f.obs, "obs", nil, "Annotation columns, the time column included")
	cmd.Flags().StringVar(&f.lineageKey, "lineage-key", dataset.ForwardLineageKey, "Key the lineage columns are stored under")
	cmd.Flags().StringSliceVar(&f.lineageColumns, "lineage-columns", nil, "Lineage membership columns")
	cmd.Flags().StringVar(&f.lin, "lineage", "", "Lineage used as cell weights, uniform weights when empty")
	cmd.Flags().StringVar(&f.dataKey, "data-key", dataset.KeyX, "Expression layer")
	cmd.Flags().StringVar(&f.timeKey, "time-key", "", "Pseudotime annotation (default from CELLFATE_TIME_KEY)")
	cmd.Flags().StringVar(&f.model, "model", "spline", "Trend model: spline|poly|kernel|ols|mgcv")
	cmd.Flags().IntVar(&f.nTestPoints, "n-test-points", 0, "Prediction grid size (default from CELLFATE_N_TEST_POINTS)")
	cmd.Flags().Float64Var(&f.threshold, "weight-threshold", -1, "Lineage weights below this are replaced (default from CELLFATE_WEIGHT_THRESHOLD)")
	cmd.Flags().BoolVar(&f.confInt, "conf-int", false, "Also compute confidence intervals")
	cmd.Flags().BoolVar(&f.gridSearch, "grid-search", false, "Tune spline hyperparameters by grid search")
	cmd.Flags().IntVar(&f.degree, "degree", regress.DefaultParams().Degree, "Polynomial degree of poly")
	cmd.Flags().Float64Var(&f.bandwidth, "bandwidth", 0, "Kernel bandwidth, 0 selects it from the data")
	cmd.Flags().IntVar(&f.nSplines, "n-splines", 0, "Number of basis functions of spline and mgcv")
	cmd.Flags().StringVar(&f.family, "family", trend.DefaultMGCVConfig().Family, "mgcv family")
	cmd.Flags().BoolVar(&f.store, "store", false, "Record the run in the PostgreSQL database named by DATABASE_URL")
	cmd.Flags().StringVar(&f.out, "out", "", "Output file (.csv or .xlsx), stdout when empty")
	return cmd
}

func runFit(cmd *cobra.Command, a *app, f *fitFlags, path string, genes []string) error {
	opts := excel.DatasetOptions{ObsColumns: f.obs}
	if len(f.lineageColumns) > 0 {
		opts.Lineages = map[string][]string{f.lineageKey: f.lineageColumns}
	}
	d, err := excel.ReadDataset(path, opts)
	if err != nil {
		return err
	}

	seed, err := newTrendModel(cmd.Context(), a, f, d)
	if err != nil {
		return err
	}

	tc := a.cfg.Trend
	if f.timeKey != "" {
		tc.TimeKey = f.timeKey
	}
	if f.nTestPoints > 0 {
		tc.NTestPoints = f.nTestPoints
	}
	if f.threshold >= 0 {
		tc.WeightThreshold = f.threshold
	}
	prep := []trend.PrepareOption{
		trend.DataKey(f.dataKey),
		trend.TimeKey(tc.TimeKey),
		trend.LineageKey(f.lineageKey),
		trend.NTestPoints(tc.NTestPoints),
		trend.WeightThresholdPair(tc.WeightThreshold, tc.WeightReplacement),
	}

	fitter := &batch.Fitter{Seed: seed, Parallelism: int64(a.cfg.Runtime.Parallelism), ConfInt: f.confInt}
	if f.store {
		db, repo, err := openRunStore(cmd.Context(), a.cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		fitter.Recorder = repo
	}
	run, err := fitter.FitGenes(cmd.Context(), genes, f.lin, prep...)
	if err != nil {
		return err
	}
	if run.Failed == len(genes) {
		return fmt.Errorf("run %s: all %d genes failed, first error: %w", run.ID, len(genes), run.Results[0].Err)
	}

	t := trendTable(run)
	if f.out != "" {
		return excel.WriteTable(f.out, t)
	}
	printTable(cmd, t)
	return nil
}

func newTrendModel(ctx context.Context, a *app, f *fitFlags, d *dataset.Dataset) (trend.Model, error) {
	var rt ports.RRuntime
	if f.model == trend.KindMGCV {
		r, err := rbridge.New(rbridge.Config{Path: a.cfg.Runtime.RscriptPath, Timeout: a.cfg.Runtime.RTimeout})
		if err != nil {
			return nil, err
		}
		rt = r
	}
	return trend.Build(ctx, d, trend.Spec{
		Kind:       f.model,
		Degree:     f.degree,
		Bandwidth:  f.bandwidth,
		NSplines:   f.nSplines,
		Family:     f.family,
		Timeout:    a.cfg.Runtime.RTimeout,
		GridSearch: f.gridSearch,
	}, rt)
}

// trendTable lays out one row per gene and test point.
func trendTable(run *batch.Run) *excel.Table {
	t := &excel.Table{Headers: []string{"gene", "lineage", "model", "x", "y", "lower", "upper"}}
	for _, r := range run.Results {
		if r.Err != nil {
			continue
		}
		lin := r.Lineage
		if lin == "" {
			lin = "all"
		}
		for i, x := range r.XTest {
			lower, upper := "", ""
			if r.ConfInt != nil {
				lower, upper = fmt.Sprintf("%g", r.ConfInt[i][0]), fmt.Sprintf("%g", r.ConfInt[i][1])
			}
			t.Rows = append(t.Rows, []string{
				r.Gene, lin, r.Model,
				fmt.Sprintf("%g", x), fmt.Sprintf("%g", r.YTest[i]), lower, upper,
			})
		}
	}
	return t
}
