// Package colors resolves color-like values to canonical hex and builds
// deterministic categorical palettes for lineage columns.
package colors

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"

	"cellfate/domain/core"
)

// Palette returns n categorical colors as canonical hex strings.
// Implementations must be pure: the same n always yields the same colors.
type Palette func(n int) []string

// base categorical colors, used before any generated ones
var base = []string{
	"#1f77b4", "#ff7f0e", "#279e68", "#d62728", "#aa40fc",
	"#8c564b", "#e377c2", "#b5bd61", "#17becf", "#aec7e8",
	"#ffbb78", "#98df8a", "#ff9896", "#c5b0d5", "#c49c94",
	"#f7b6d2", "#dbdb8d", "#9edae5", "#ad494a", "#8c6d31",
}

// NewPalette returns a palette that starts with the fixed categorical colors and
// extends them with HCL colors drawn from a generator seeded by seed.
func NewPalette(seed int64) Palette {
	return func(n int) []string {
		if n <= 0 {
			return []string{}
		}
		out := make([]string, 0, n)
		for i := 0; i < n && i < len(base); i++ {
			out = append(out, base[i])
		}
		if n <= len(base) {
			return out
		}

		rng := rand.New(rand.NewSource(seed))
		seen := make(map[string]struct{}, n)
		for _, c := range out {
			seen[c] = struct{}{}
		}
		for len(out) < n {
			h := rng.Float64() * 360
			c := 0.35 + 0.4*rng.Float64()
			l := 0.45 + 0.35*rng.Float64()
			hex := colorful.Hcl(h, c, l).Clamped().Hex()
			if _, dup := seen[hex]; dup {
				continue
			}
			seen[hex] = struct{}{}
			out = append(out, hex)
		}
		return out
	}
}

// DefaultPalette is the palette used when no colors are supplied.
var DefaultPalette = NewPalette(0)

// Parse resolves a color-like value: #rgb, #rrggbb, #rrggbbaa (alpha dropped),
// an SVG color name, or a grayscale level in [0, 1].
func Parse(value string) (colorful.Color, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return colorful.Color{}, fmt.Errorf("%w: empty value", core.ErrInvalidColor)
	}

	if strings.HasPrefix(v, "#") {
		if !isHexCode(v[1:]) {
			return colorful.Color{}, fmt.Errorf("%w: %q", core.ErrInvalidColor, value)
		}
		if len(v) == 9 {
			v = v[:7]
		}
		c, err := colorful.Hex(v)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("%w: %q", core.ErrInvalidColor, value)
		}
		return c, nil
	}

	if rgba, ok := colornames.Map[v]; ok {
		c, _ := colorful.MakeColor(rgba)
		return c, nil
	}

	if g, err := strconv.ParseFloat(v, 64); err == nil && g >= 0 && g <= 1 {
		return colorful.Color{R: g, G: g, B: g}, nil
	}

	return colorful.Color{}, fmt.Errorf("%w: %q", core.ErrInvalidColor, value)
}

// isHexCode accepts 3, 6 or 8 hex digits.
func isHexCode(digits string) bool {
	switch len(digits) {
	case 3, 6, 8:
	default:
		return false
	}
	for _, r := range digits {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// IsColorLike reports whether Parse accepts value.
func IsColorLike(value string) bool {
	_, err := Parse(value)
	return err == nil
}

// ToHex normalizes a color-like value to lowercase #rrggbb.
func ToHex(value string) (string, error) {
	c, err := Parse(value)
	if err != nil {
		return "", err
	}
	return c.Clamped().Hex(), nil
}

// Mean returns the perceptual mean of the given colors, averaged in CIE-Lab.
func Mean(values []string) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("%w: no colors to average", core.ErrInvalidColor)
	}
	var l, a, b float64
	for _, v := range values {
		c, err := Parse(v)
		if err != nil {
			return "", err
		}
		cl, ca, cb := c.Lab()
		l += cl
		a += ca
		b += cb
	}
	n := float64(len(values))
	mean := colorful.Lab(l/n, a/n, b/n)
	if math.IsNaN(mean.R) || math.IsNaN(mean.G) || math.IsNaN(mean.B) {
		return "", fmt.Errorf("%w: mean color is undefined", core.ErrInvalidColor)
	}
	return mean.Clamped().Hex(), nil
}
