package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cellfate/adapters/excel"
	"cellfate/adapters/similarity"
	"cellfate/domain/lineage"
)

func newReduceCmd(a *app) *cobra.Command {
	var (
		mode, measure, normalize string
		beta                     float64
		neighbors                int
		out, weightsOut          string
	)

	cmd := &cobra.Command{
		Use:   "reduce [lineage-file] [keys...]",
		Short: "Restrict a lineage matrix to reference lineages",
		Long: `Keep the reference lineages named by keys and redistribute the membership
of every other lineage onto them, so that each row still sums to one.

The lineage file has a cell column followed by one column per lineage, and an
optional first row labelled "color".

Example: cellfate reduce fates.csv Ery Mono --measure cosine_sim --out reduced.xlsx`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cells, err := excel.ReadLineage(args[0], excel.LineageOptions{})
			if err != nil {
				return err
			}

			rc := a.cfg.Reduce
			if cmd.Flags().Changed("mode") {
				if rc.Mode, err = lineage.ParseMode(mode); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("normalize") {
				if rc.Normalization, err = lineage.ParseNormalization(normalize); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("measure") {
				rc.Measure = measure
			}
			if cmd.Flags().Changed("beta") {
				rc.SoftmaxBeta = beta
			}
			measureOpts := similarity.DefaultOptions()
			measureOpts.Neighbors = neighbors
			measureOpts.Seed = a.cfg.Runtime.Seed

			opts := []lineage.ReduceOption{
				lineage.WithMode(rc.Mode),
				lineage.WithMeasure(rc.Measure),
				lineage.WithMeasureOptions(measureOpts),
				lineage.WithNormalization(rc.Normalization),
				lineage.WithBeta(rc.SoftmaxBeta),
			}
			if weightsOut != "" {
				opts = append(opts, lineage.WithReturnWeights())
			}

			reduced, weights, err := l.Reduce(args[1:], opts...)
			if err != nil {
				return err
			}
			if err := writeLineage(cmd, reduced, cells, out); err != nil {
				return err
			}
			if weights != nil {
				return excel.WriteTable(weightsOut, weightTable(weights))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "dist", "How query lineages are handled: dist|scale")
	cmd.Flags().StringVar(&measure, "measure", similarity.MutualInfo,
		"Similarity measure: "+strings.Join(similarity.Names(), "|"))
	cmd.Flags().StringVar(&normalize, "normalize", "softmax", "Weight normalization: scale|softmax")
	cmd.Flags().Float64Var(&beta, "beta", 1, "Softmax inverse temperature")
	cmd.Flags().IntVar(&neighbors, "neighbors", similarity.DefaultOptions().Neighbors, "Neighbors of the mutual information estimator")
	cmd.Flags().StringVar(&out, "out", "", "Output file (.csv or .xlsx), stdout when empty")
	cmd.Flags().StringVar(&weightsOut, "weights-out", "", "Write the query x reference weights to this file")
	return cmd
}

func newMixCmd(_ *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "mix [lineage-file] [groups...]",
		Short: "Merge lineages into macrostates",
		Long: `Each group is a comma-separated list of lineage names that is summed into a
single column, or a single name kept as is. The group "rest" collects every
lineage not named by another group.

Example: cellfate mix fates.csv "Ery, Meg" rest --out macro.csv`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cells, err := excel.ReadLineage(args[0], excel.LineageOptions{})
			if err != nil {
				return err
			}
			sels := make([]any, len(args)-1)
			for i, g := range args[1:] {
				if strings.EqualFold(strings.TrimSpace(g), string(lineage.Rest)) {
					sels[i] = lineage.Rest
				} else {
					sels[i] = g
				}
			}
			mixed, err := l.Mix(nil, sels...)
			if err != nil {
				return err
			}
			return writeLineage(cmd, mixed, cells, out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output file (.csv or .xlsx), stdout when empty")
	return cmd
}

func writeLineage(cmd *cobra.Command, l *lineage.Lineage, cells []string, out string) error {
	t, err := excel.LineageTable(l, cells)
	if err != nil {
		return err
	}
	if out != "" {
		return excel.WriteTable(out, t)
	}
	printTable(cmd, t)
	return nil
}

func weightTable(w *lineage.WeightTable) *excel.Table {
	t := &excel.Table{Headers: append([]string{"query"}, w.Reference...)}
	for i, q := range w.Query {
		row := []string{q}
		for j := range w.Reference {
			row = append(row, fmt.Sprintf("%g", w.Values.At(i, j)))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func printTable(cmd *cobra.Command, t *excel.Table) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, strings.Join(t.Headers, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}
