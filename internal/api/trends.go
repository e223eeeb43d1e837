package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/domain/dataset"
	"cellfate/internal/batch"
	apperrors "cellfate/internal/errors"
	"cellfate/internal/trend"
)

const defaultRunLimit = 50

// TrendsRequest carries a dense cells x genes expression matrix, the
// pseudotime of every cell and optionally a lineage used as cell weights.
type TrendsRequest struct {
	Cells      []string        `json:"cells" binding:"required"`
	Genes      []string        `json:"genes" binding:"required"`
	Expression [][]float64     `json:"expression" binding:"required"`
	Time       []float64       `json:"time" binding:"required"`
	Lineage    *LineagePayload `json:"lineage,omitempty"`
	// Fit lists the genes to fit, all genes when empty.
	Fit []string `json:"fit,omitempty"`
	// Target is the lineage whose memberships weight the cells.
	Target string `json:"target,omitempty"`

	Model           string   `json:"model,omitempty"`
	Degree          int      `json:"degree,omitempty"`
	Bandwidth       float64  `json:"bandwidth,omitempty"`
	NSplines        int      `json:"n_splines,omitempty"`
	Family          string   `json:"family,omitempty"`
	GridSearch      bool     `json:"grid_search,omitempty"`
	NTestPoints     int      `json:"n_test_points,omitempty"`
	WeightThreshold *float64 `json:"weight_threshold,omitempty"`
	ConfInt         bool     `json:"conf_int,omitempty"`
}

// TrendResult is the prediction of one gene.
type TrendResult struct {
	Gene       string    `json:"gene"`
	Lineage    string    `json:"lineage,omitempty"`
	Model      string    `json:"model"`
	X          []float64 `json:"x,omitempty"`
	Y          []float64 `json:"y,omitempty"`
	Lower      []float64 `json:"lower,omitempty"`
	Upper      []float64 `json:"upper,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

type RunResponse struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Failed    int           `json:"failed"`
	Results   []TrendResult `json:"results"`
}

func runResponse(run *batch.Run) RunResponse {
	resp := RunResponse{
		ID:        run.ID.String(),
		CreatedAt: run.CreatedAt,
		Failed:    run.Failed,
		Results:   make([]TrendResult, len(run.Results)),
	}
	for i, r := range run.Results {
		tr := TrendResult{
			Gene:       r.Gene,
			Lineage:    r.Lineage,
			Model:      r.Model,
			X:          r.XTest,
			Y:          r.YTest,
			DurationMs: float64(r.Duration) / float64(time.Millisecond),
		}
		if r.ConfInt != nil {
			tr.Lower = make([]float64, len(r.ConfInt))
			tr.Upper = make([]float64, len(r.ConfInt))
			for k, b := range r.ConfInt {
				tr.Lower[k], tr.Upper[k] = b[0], b[1]
			}
		}
		if r.Err != nil {
			tr.Error = r.Err.Error()
		}
		resp.Results[i] = tr
	}
	return resp
}

// dataset assembles the request into a dataset with the time column stored
// under timeKey and the lineage under the forward lineage key.
func (r *TrendsRequest) dataset(timeKey string) (*dataset.Dataset, error) {
	n, g := len(r.Cells), len(r.Genes)
	if n == 0 || g == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "expected at least one cell and one gene, found %d and %d", n, g)
	}
	if len(r.Expression) != n {
		return nil, apperrors.Validation(core.ErrInvalidShape, "expression has %d rows, expected %d", len(r.Expression), n)
	}
	data := make([]float64, 0, n*g)
	for i, row := range r.Expression {
		if len(row) != g {
			return nil, apperrors.Validation(core.ErrInvalidShape, "expression row %d has %d values, expected %d", i, len(row), g)
		}
		data = append(data, row...)
	}

	d, err := dataset.New(r.Cells, r.Genes, mat.NewDense(n, g, data))
	if err != nil {
		return nil, err
	}
	if err := d.AddObs(timeKey, dataset.NumericColumn(r.Time)); err != nil {
		return nil, err
	}
	if r.Lineage != nil {
		l, err := r.Lineage.toLineage()
		if err != nil {
			return nil, err
		}
		if err := d.SetObsm(dataset.ForwardLineageKey, l); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Server) fitTrends(c *gin.Context) {
	var req TrendsRequest
	if !bindJSON(c, &req) {
		return
	}

	tc := s.cfg.Trend
	if req.NTestPoints > 0 {
		tc.NTestPoints = req.NTestPoints
	}
	if req.WeightThreshold != nil {
		tc.WeightThreshold = *req.WeightThreshold
	}

	d, err := req.dataset(tc.TimeKey)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	model, err := trend.Build(ctx, d, trend.Spec{
		Kind:       req.Model,
		Degree:     req.Degree,
		Bandwidth:  req.Bandwidth,
		NSplines:   req.NSplines,
		Family:     req.Family,
		Timeout:    s.cfg.Runtime.RTimeout,
		GridSearch: req.GridSearch,
	}, s.rt)
	if err != nil {
		abortWithError(c, err)
		return
	}

	genes := req.Fit
	if len(genes) == 0 {
		genes = req.Genes
	}
	fitter := &batch.Fitter{Seed: model, Parallelism: int64(s.cfg.Runtime.Parallelism), ConfInt: req.ConfInt}
	if s.runs != nil {
		fitter.Recorder = s.runs
	}
	run, err := fitter.FitGenes(ctx, genes, req.Target,
		trend.TimeKey(tc.TimeKey),
		trend.LineageKey(dataset.ForwardLineageKey),
		trend.NTestPoints(tc.NTestPoints),
		trend.WeightThresholdPair(tc.WeightThreshold, tc.WeightReplacement),
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, runResponse(run))
}

func (s *Server) listRuns(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunLimit)))
	if err != nil || limit < 0 {
		abortWithError(c, apperrors.InvalidInput("limit must be a non-negative integer"))
		return
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if runs == nil {
		runs = []batch.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		abortWithError(c, apperrors.InvalidInput(err.Error()))
		return
	}
	run, err := s.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, runResponse(run))
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.runs == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, errorResponse{
			Error: "run history is disabled, set DATABASE_URL to enable it",
			Code:  apperrors.CodeConfigInvalid,
		})
		return false
	}
	return true
}
