package lineage

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/internal/colors"
	apperrors "cellfate/internal/errors"
)

// DefaultNames returns "Lineage 0" ... "Lineage n-1".
func DefaultNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Lineage %d", i)
	}
	return out
}

// Restore rebuilds a Lineage from stored probabilities and metadata. Names
// that are missing, of the wrong length or not unique are replaced by
// DefaultNames; colors that are missing, of the wrong length or not color-like
// are replaced by the palette.
func Restore(x mat.Matrix, names, cs []string, palette colors.Palette) (*Lineage, error) {
	if x == nil {
		return nil, apperrors.Validation(core.ErrInvalidShape, "stored matrix is nil")
	}
	if palette == nil {
		palette = colors.DefaultPalette
	}
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return nil, apperrors.Validation(core.ErrInvalidShape, "stored matrix is empty")
	}

	if !validNames(names, c) {
		logger.Warn("Stored lineage names are missing or invalid, using default names")
		names = DefaultNames(c)
	}
	if !validColors(cs, c) {
		logger.Warn("Stored lineage colors are missing or invalid, using default colors")
		cs = palette(c)
	}
	return New(x, names, WithColors(cs...))
}

func validNames(names []string, n int) bool {
	if len(names) != n {
		return false
	}
	seen := make(map[string]struct{}, n)
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return false
		}
		seen[name] = struct{}{}
	}
	return true
}

func validColors(cs []string, n int) bool {
	if len(cs) != n {
		return false
	}
	for _, c := range cs {
		if !colors.IsColorLike(c) {
			return false
		}
	}
	return true
}
