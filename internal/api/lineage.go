package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cellfate/adapters/similarity"
	"cellfate/domain/lineage"
)

// LineagePayload is a membership matrix in row-major order. Names default to
// "Lineage 0", "Lineage 1", ... and colors to the default palette.
type LineagePayload struct {
	Names  []string    `json:"names,omitempty"`
	Colors []string    `json:"colors,omitempty"`
	Values [][]float64 `json:"values" binding:"required"`
}

func (p LineagePayload) toLineage() (*lineage.Lineage, error) {
	names := p.Names
	if names == nil && len(p.Values) > 0 {
		names = lineage.DefaultNames(len(p.Values[0]))
	}
	var opts []lineage.Option
	if len(p.Colors) > 0 {
		opts = append(opts, lineage.WithColors(p.Colors...))
	}
	return lineage.FromRows(p.Values, names, opts...)
}

func lineagePayload(l *lineage.Lineage) LineagePayload {
	n, k := l.Dims()
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, k)
		for j := range values[i] {
			values[i][j] = l.At(i, j)
		}
	}
	return LineagePayload{Names: l.Names(), Colors: l.Colors(), Values: values}
}

// WeightsPayload holds one row per query lineage and one column per reference lineage.
type WeightsPayload struct {
	Query     []string    `json:"query"`
	Reference []string    `json:"reference"`
	Values    [][]float64 `json:"values"`
}

// ReduceRequest restricts a lineage to Keys. Empty options fall back to the
// server configuration.
type ReduceRequest struct {
	Lineage       LineagePayload `json:"lineage"`
	Keys          []string       `json:"keys" binding:"required"`
	Mode          string         `json:"mode,omitempty"`
	Measure       string         `json:"measure,omitempty"`
	Normalize     string         `json:"normalize,omitempty"`
	Beta          float64        `json:"beta,omitempty"`
	Neighbors     int            `json:"neighbors,omitempty"`
	ReturnWeights bool           `json:"return_weights,omitempty"`
}

type ReduceResponse struct {
	Lineage LineagePayload  `json:"lineage"`
	Weights *WeightsPayload `json:"weights,omitempty"`
}

// MixRequest merges lineages. A group is a comma-separated list of names or
// "rest"; Rows optionally restricts the cells.
type MixRequest struct {
	Lineage LineagePayload `json:"lineage"`
	Groups  []string       `json:"groups" binding:"required"`
	Rows    []int          `json:"rows,omitempty"`
}

func (s *Server) listMeasures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"measures":       similarity.Names(),
		"modes":          []lineage.Mode{lineage.ModeDist, lineage.ModeScale},
		"normalizations": []lineage.Normalization{lineage.NormalizeScale, lineage.NormalizeSoftmax},
		"defaults": gin.H{
			"mode":      s.cfg.Reduce.Mode,
			"measure":   s.cfg.Reduce.Measure,
			"normalize": s.cfg.Reduce.Normalization,
			"beta":      s.cfg.Reduce.SoftmaxBeta,
		},
	})
}

func (s *Server) reduceLineage(c *gin.Context) {
	var req ReduceRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := req.Lineage.toLineage()
	if err != nil {
		abortWithError(c, err)
		return
	}

	rc := s.cfg.Reduce
	if req.Mode != "" {
		if rc.Mode, err = lineage.ParseMode(req.Mode); err != nil {
			abortWithError(c, err)
			return
		}
	}
	if req.Normalize != "" {
		if rc.Normalization, err = lineage.ParseNormalization(req.Normalize); err != nil {
			abortWithError(c, err)
			return
		}
	}
	if req.Measure != "" {
		rc.Measure = req.Measure
	}
	if req.Beta != 0 {
		rc.SoftmaxBeta = req.Beta
	}
	measureOpts := similarity.DefaultOptions()
	measureOpts.Seed = s.cfg.Runtime.Seed
	if req.Neighbors > 0 {
		measureOpts.Neighbors = req.Neighbors
	}

	opts := []lineage.ReduceOption{
		lineage.WithMode(rc.Mode),
		lineage.WithMeasure(rc.Measure),
		lineage.WithMeasureOptions(measureOpts),
		lineage.WithNormalization(rc.Normalization),
		lineage.WithBeta(rc.SoftmaxBeta),
	}
	if req.ReturnWeights {
		opts = append(opts, lineage.WithReturnWeights())
	}

	reduced, weights, err := l.Reduce(req.Keys, opts...)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := ReduceResponse{Lineage: lineagePayload(reduced)}
	if weights != nil {
		w := &WeightsPayload{Query: weights.Query, Reference: weights.Reference}
		for i := range weights.Query {
			row := make([]float64, len(weights.Reference))
			for j := range row {
				row[j] = weights.Values.At(i, j)
			}
			w.Values = append(w.Values, row)
		}
		resp.Weights = w
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) mixLineage(c *gin.Context) {
	var req MixRequest
	if !bindJSON(c, &req) {
		return
	}
	l, err := req.Lineage.toLineage()
	if err != nil {
		abortWithError(c, err)
		return
	}

	sels := make([]any, len(req.Groups))
	for i, g := range req.Groups {
		if strings.EqualFold(strings.TrimSpace(g), string(lineage.Rest)) {
			sels[i] = lineage.Rest
		} else {
			sels[i] = g
		}
	}
	mixed, err := l.Mix(req.Rows, sels...)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, lineagePayload(mixed))
}
