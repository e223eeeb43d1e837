package lineage

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"cellfate/domain/core"
	"cellfate/internal/colors"
	apperrors "cellfate/internal/errors"
)

// Mix merges groups of columns into macrostates. Each selector is either a
// comma-joined list of names (summed into one column named "A or B"), a single
// name or position (kept as is), or the Rest marker, which collects every column
// not referenced by another group into a column named REST. Groups must not
// overlap and Rest may appear at most once. rows selects rows as in Select.
func (l *Lineage) Mix(rows []int, sels ...any) (*Lineage, error) {
	rix, err := l.resolveRows(rows)
	if err != nil {
		return nil, err
	}

	rest := 0
	var groups [][]int
	for _, s := range sels {
		if m, ok := s.(Marker); ok {
			if m != Rest {
				return nil, apperrors.Validation(core.ErrInvalidSelector, "unknown marker %q", string(m))
			}
			rest++
			continue
		}
		g, err := l.group(s)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if rest > 1 {
		return nil, apperrors.Validation(core.ErrMultipleRest, "rest marker is allowed only once in the expression, found %d", rest)
	}
	groups = uniqueGroups(groups)

	if err := l.checkOverlap(groups); err != nil {
		return nil, err
	}

	var (
		names  []string
		cs     []string
		values [][]float64
	)
	appendGroup := func(g []int, name string) error {
		if len(g) == 0 {
			return nil
		}
		col := make([]float64, len(rix))
		for i, r := range rix {
			for _, c := range g {
				col[i] += l.x.At(r, c)
			}
		}
		members := make([]string, len(g))
		memberColors := make([]string, len(g))
		for k, c := range g {
			members[k] = l.names[c]
			memberColors[k] = l.colors[c]
		}
		color := memberColors[0]
		if len(g) > 1 {
			mean, err := colors.Mean(memberColors)
			if err != nil {
				return err
			}
			color = mean
		}
		if name == "" {
			name = strings.Join(members, " or ")
		}
		names = append(names, name)
		cs = append(cs, color)
		values = append(values, col)
		return nil
	}

	seen := make(map[int]struct{})
	for _, g := range groups {
		for _, c := range g {
			seen[c] = struct{}{}
		}
		if err := appendGroup(g, ""); err != nil {
			return nil, err
		}
	}

	if rest == 1 {
		var remaining []int
		for c := range l.names {
			if _, ok := seen[c]; !ok {
				remaining = append(remaining, c)
			}
		}
		if err := appendGroup(remaining, string(Rest)); err != nil {
			return nil, err
		}
	}

	if len(values) == 0 {
		return nil, apperrors.Validation(core.ErrInvalidSelector, "mixture expression selects no columns")
	}

	x := mat.NewDense(len(rix), len(values), nil)
	for j, col := range values {
		x.SetCol(j, col)
	}
	return build(x, names, WithColors(cs...))
}

// group resolves one selector to column positions. Comma-joined names are
// trimmed, de-duplicated and sorted by name before resolution.
func (l *Lineage) group(s any) ([]int, error) {
	str, ok := s.(string)
	if !ok {
		return l.resolveCols([]any{s})
	}

	parts := strings.Split(strings.Trim(str, " ,"), ",")
	set := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, " ")
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sels := make([]any, len(keys))
	for i, k := range keys {
		sels[i] = k
	}
	return l.resolveCols(sels)
}

func uniqueGroups(groups [][]int) [][]int {
	out := make([][]int, 0, len(groups))
outer:
	for _, g := range groups {
		for _, o := range out {
			if equalInts(g, o) {
				continue outer
			}
		}
		out = append(out, g)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (l *Lineage) checkOverlap(groups [][]int) error {
	for i := 0; i < len(groups); i++ {
		in := make(map[int]struct{}, len(groups[i]))
		for _, c := range groups[i] {
			in[c] = struct{}{}
		}
		for j := i + 1; j < len(groups); j++ {
			var overlap []string
			for _, c := range groups[j] {
				if _, ok := in[c]; ok {
					overlap = append(overlap, l.names[c])
				}
			}
			if len(overlap) > 0 {
				return apperrors.Validation(core.ErrOverlappingGroups, "found overlapping keys: %s", strings.Join(overlap, ", "))
			}
		}
	}
	return nil
}
