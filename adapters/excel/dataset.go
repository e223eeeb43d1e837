package excel

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	"cellfate/domain/lineage"
	apperrors "cellfate/internal/errors"
)

// CellHeader names the cell column in written tables.
const CellHeader = "cell"

// ColorRowLabel marks the optional row of a lineage table that carries one
// color per lineage. It must be the first data row.
const ColorRowLabel = "color"

// DatasetOptions selects how the columns of a cell table are interpreted.
// Columns that are neither the cell column, an annotation nor a lineage
// column are genes.
type DatasetOptions struct {
	Sheet string
	// CellColumn holds the cell names, the first column when empty.
	CellColumn string
	// ObsColumns become per-cell annotations: numeric when every non-empty
	// value parses as a number, categorical otherwise.
	ObsColumns []string
	// Lineages maps an annotation key to the membership columns stored under it.
	Lineages map[string][]string
	// Layer additionally stores the expression matrix as a layer.
	Layer string
	// Sparse stores the expression matrix in CSR form.
	Sparse bool
}

// ReadDataset loads a cells x columns table into a Dataset. Empty gene cells
// are read as zero counts.
func ReadDataset(path string, opts DatasetOptions) (*dataset.Dataset, error) {
	t, err := NewDataReader(path).WithSheet(opts.Sheet).ReadTable()
	if err != nil {
		return nil, err
	}

	cellCol, err := cellColumn(t, opts.CellColumn)
	if err != nil {
		return nil, err
	}
	reserved := map[int]bool{cellCol: true}
	obsCols := make([]int, len(opts.ObsColumns))
	for i, name := range opts.ObsColumns {
		if obsCols[i], err = t.ColumnIndex(name); err != nil {
			return nil, err
		}
		reserved[obsCols[i]] = true
	}
	linCols := make(map[string][]int, len(opts.Lineages))
	for key, names := range opts.Lineages {
		for _, name := range names {
			j, err := t.ColumnIndex(name)
			if err != nil {
				return nil, err
			}
			linCols[key] = append(linCols[key], j)
			reserved[j] = true
		}
	}

	var genes []string
	var geneCols []int
	for j, h := range t.Headers {
		if !reserved[j] {
			genes = append(genes, h)
			geneCols = append(geneCols, j)
		}
	}

	x, err := numericBlock(t, geneCols, 0)
	if err != nil {
		return nil, err
	}
	var expr mat.Matrix = x
	if opts.Sparse {
		expr = dataset.CSRFromDense(x)
	}
	d, err := dataset.New(t.Column(cellCol), genes, expr)
	if err != nil {
		return nil, err
	}
	if opts.Layer != "" {
		if err := d.AddLayer(opts.Layer, expr); err != nil {
			return nil, err
		}
	}

	for i, j := range obsCols {
		if err := d.AddObs(opts.ObsColumns[i], annotation(t.Column(j))); err != nil {
			return nil, err
		}
	}
	for key, cols := range linCols {
		m, err := numericBlock(t, cols, 0)
		if err != nil {
			return nil, err
		}
		l, err := lineage.New(m, opts.Lineages[key])
		if err != nil {
			return nil, apperrors.Wrapf(err, "invalid lineage %q", key)
		}
		if err := d.SetObsm(key, l); err != nil {
			return nil, err
		}
	}

	logger.Info("loaded %s: %d cells, %d genes, %d annotations, %d lineage keys",
		path, d.NumObs(), d.NumVars(), len(obsCols), len(linCols))
	return d, nil
}

// LineageOptions configures ReadLineage.
type LineageOptions struct {
	Sheet      string
	CellColumn string
}

// ReadLineage loads a cells x lineages table. Every column besides the cell
// column is a lineage. Colors are taken from a leading ColorRowLabel row when
// present. It returns the cell names alongside the lineage.
func ReadLineage(path string, opts LineageOptions) (*lineage.Lineage, []string, error) {
	t, err := NewDataReader(path).WithSheet(opts.Sheet).ReadTable()
	if err != nil {
		return nil, nil, err
	}
	cellCol, err := cellColumn(t, opts.CellColumn)
	if err != nil {
		return nil, nil, err
	}

	var names []string
	var cols []int
	for j, h := range t.Headers {
		if j != cellCol {
			names = append(names, h)
			cols = append(cols, j)
		}
	}

	var linOpts []lineage.Option
	if t.Rows[0][cellCol] == ColorRowLabel {
		colorRow := make([]string, len(cols))
		for i, j := range cols {
			colorRow[i] = t.Rows[0][j]
		}
		linOpts = append(linOpts, lineage.WithColors(colorRow...))
		t = &Table{Headers: t.Headers, Rows: t.Rows[1:]}
	}
	if len(t.Rows) == 0 {
		return nil, nil, apperrors.Validation(core.ErrInvalidShape, "lineage table %s has no cells", path)
	}

	m, err := numericBlock(t, cols, math.NaN())
	if err != nil {
		return nil, nil, err
	}
	l, err := lineage.New(m, names, linOpts...)
	if err != nil {
		return nil, nil, err
	}
	return l, t.Column(cellCol), nil
}

// LineageTable lays out a lineage with a color row, ready for WriteTable.
func LineageTable(l *lineage.Lineage, cells []string) (*Table, error) {
	n, k := l.Dims()
	if len(cells) != n {
		return nil, apperrors.Validation(core.ErrInvalidShape, "expected %d cell names, found %d", n, len(cells))
	}
	t := &Table{Headers: append([]string{CellHeader}, l.Names()...)}
	t.Rows = append(t.Rows, append([]string{ColorRowLabel}, l.Colors()...))
	for i := 0; i < n; i++ {
		row := make([]string, k+1)
		row[0] = cells[i]
		for j := 0; j < k; j++ {
			row[j+1] = formatFloat(l.At(i, j))
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// DatasetTable lays out the expression matrix with every annotation and
// lineage membership, in the layout ReadDataset understands. Annotations and
// lineage keys are written in sorted order.
func DatasetTable(d *dataset.Dataset) (*Table, error) {
	obsKeys := make([]string, 0, len(d.Obs))
	for k := range d.Obs {
		obsKeys = append(obsKeys, k)
	}
	sort.Strings(obsKeys)
	linKeys := make([]string, 0, len(d.Obsm))
	for k := range d.Obsm {
		linKeys = append(linKeys, k)
	}
	sort.Strings(linKeys)

	t := &Table{Headers: append([]string{CellHeader}, obsKeys...)}
	t.Headers = append(t.Headers, d.VarNames...)
	lins := make([]*lineage.Lineage, len(linKeys))
	for i, key := range linKeys {
		l, err := d.Lineage(key)
		if err != nil {
			return nil, err
		}
		lins[i] = l
		t.Headers = append(t.Headers, l.Names()...)
	}

	for i, cell := range d.ObsNames {
		row := []string{cell}
		for _, k := range obsKeys {
			col := d.Obs[k]
			if col.Type == dataset.TypeCategorical {
				row = append(row, col.Categorical[i])
			} else if math.IsNaN(col.Numeric[i]) {
				row = append(row, "")
			} else {
				row = append(row, formatFloat(col.Numeric[i]))
			}
		}
		for j := range d.VarNames {
			row = append(row, formatFloat(d.X.At(i, j)))
		}
		for _, l := range lins {
			for j := 0; j < l.NumLineages(); j++ {
				row = append(row, formatFloat(l.At(i, j)))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func cellColumn(t *Table, name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	return t.ColumnIndex(name)
}

// numericBlock parses the given columns into a dense matrix, reading empty
// cells as missing.
func numericBlock(t *Table, cols []int, missing float64) (*mat.Dense, error) {
	if len(cols) == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "table has no numeric columns")
	}
	m := mat.NewDense(len(t.Rows), len(cols), nil)
	for i, row := range t.Rows {
		for k, j := range cols {
			if row[j] == "" {
				m.Set(i, k, missing)
				continue
			}
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, apperrors.Validation(core.ErrInvalidType,
					"column %q row %d: %q is not a number", t.Headers[j], i+2, row[j])
			}
			m.Set(i, k, v)
		}
	}
	return m, nil
}

// annotation infers the statistical type of a column.
func annotation(values []string) dataset.Column {
	nums := make([]float64, len(values))
	for i, v := range values {
		if v == "" {
			nums[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return dataset.CategoricalColumn(values)
		}
		nums[i] = f
	}
	return dataset.NumericColumn(nums)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
