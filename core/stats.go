package core

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// GroupStats aggregates feature results for one category.
type GroupStats struct {
	Category         string
	Processed        int
	TotalLength      float64
	Vertices         int
	Examined         int
	Coincident       int
	CoincidentAccess int
	NonCoincident    int
	Fixed            int
	FixedInfra       int
	FixedAccess      int
	Unfixable        int
	ReversedLines    int
	ChangedFeatures  int

	// Problems holds results with at least one non-coincident vertex, in
	// processing order.
	Problems []FeatureResult
}

func (g *GroupStats) add(r FeatureResult) {
	g.Processed++
	if r.HasLength {
		g.TotalLength += r.Length
	}
	g.Vertices += r.Vertices
	g.Examined += r.Examined
	g.Coincident += r.Coincident
	g.CoincidentAccess += r.CoincidentAccess
	g.NonCoincident += r.NonCoincident
	g.Fixed += r.Fixed
	g.FixedInfra += r.FixedInfra
	g.FixedAccess += r.FixedAccess
	g.Unfixable += r.Unfixable
	if r.Reversed {
		g.ReversedLines++
	}
	if r.Fixed > 0 || r.Reversed {
		g.ChangedFeatures++
	}
	if r.NonCoincident > 0 {
		g.Problems = append(g.Problems, r)
	}
}

// Stats accumulates a run's results. It is not safe for concurrent use.
type Stats struct {
	groups map[string]*GroupStats

	SkippedBadGeometry int
	SkippedOutOfScope  int
	BadGeometry        []model.FeatureID
}

// NewStats returns empty statistics.
func NewStats() *Stats {
	return &Stats{groups: make(map[string]*GroupStats)}
}

// Record folds one result into the statistics. Out-of-scope features only
// count globally; everything else is also counted under its category.
func (s *Stats) Record(r FeatureResult) {
	switch r.Skip {
	case SkipOutOfScope:
		s.SkippedOutOfScope++
		return
	case SkipBadGeometry:
		s.SkippedBadGeometry++
		s.BadGeometry = append(s.BadGeometry, r.ID)
	}
	g, ok := s.groups[r.Category]
	if !ok {
		g = &GroupStats{Category: r.Category}
		s.groups[r.Category] = g
	}
	if r.Skip == SkipBadGeometry {
		g.Processed++
		return
	}
	g.add(r)
}

// Summary is a read-only view of Stats with categories sorted by name.
type Summary struct {
	Groups             []GroupStats
	Totals             GroupStats
	SkippedBadGeometry int
	SkippedOutOfScope  int
	SkippedNoCandidate int
}

// Summary snapshots the statistics.
func (s *Stats) Summary() Summary {
	names := make([]string, 0, len(s.groups))
	for n := range s.groups {
		names = append(names, n)
	}
	sort.Strings(names)

	sum := Summary{
		SkippedBadGeometry: s.SkippedBadGeometry,
		SkippedOutOfScope:  s.SkippedOutOfScope,
	}
	for _, n := range names {
		g := *s.groups[n]
		g.Problems = append([]FeatureResult(nil), g.Problems...)
		sum.Groups = append(sum.Groups, g)

		t := &sum.Totals
		t.Processed += g.Processed
		t.TotalLength += g.TotalLength
		t.Vertices += g.Vertices
		t.Examined += g.Examined
		t.Coincident += g.Coincident
		t.CoincidentAccess += g.CoincidentAccess
		t.NonCoincident += g.NonCoincident
		t.Fixed += g.Fixed
		t.FixedInfra += g.FixedInfra
		t.FixedAccess += g.FixedAccess
		t.Unfixable += g.Unfixable
		t.ReversedLines += g.ReversedLines
		t.ChangedFeatures += g.ChangedFeatures
	}
	sum.Totals.Category = "total"
	sum.SkippedNoCandidate = sum.Totals.Unfixable
	return sum
}

// Group returns the statistics of one category.
func (s Summary) Group(name string) (GroupStats, bool) {
	for _, g := range s.Groups {
		if g.Category == name {
			return g, true
		}
	}
	return GroupStats{}, false
}

// Render writes a human-readable report.
func (s Summary) Render(w io.Writer, check CheckKind) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s connectivity ---\n", check)
	fmt.Fprintf(&b, "processed features: %d\n", s.Totals.Processed)
	fmt.Fprintf(&b, "examined vertices: %d\n", s.Totals.Examined)
	fmt.Fprintf(&b, "non-coincident vertices: %d\n", s.Totals.NonCoincident)
	fmt.Fprintf(&b, "fixed vertices: %d\n", s.Totals.Fixed)

	for _, g := range s.Groups {
		fmt.Fprintf(&b, "\ncategory: %s\n", g.Category)
		fmt.Fprintf(&b, "  processed: %d\n", g.Processed)
		if g.TotalLength > 0 {
			fmt.Fprintf(&b, "  total length: %.2f\n", g.TotalLength)
		}
		fmt.Fprintf(&b, "  vertices examined: %d\n", g.Examined)
		fmt.Fprintf(&b, "    coincident: %d\n", g.Coincident)
		if g.CoincidentAccess > 0 {
			fmt.Fprintf(&b, "      with access points: %d\n", g.CoincidentAccess)
		}
		fmt.Fprintf(&b, "    non-coincident: %d\n", g.NonCoincident)
		fmt.Fprintf(&b, "    fixed: %d\n", g.Fixed)
		if g.FixedAccess > 0 || g.FixedInfra > 0 {
			fmt.Fprintf(&b, "      to infrastructure: %d\n", g.FixedInfra)
			fmt.Fprintf(&b, "      to access points: %d\n", g.FixedAccess)
		}
		fmt.Fprintf(&b, "    unfixable: %d\n", g.Unfixable)
		if g.ReversedLines > 0 {
			fmt.Fprintf(&b, "  reversed lines: %d\n", g.ReversedLines)
		}
		for _, p := range g.Problems {
			fmt.Fprintf(&b, "  ! %s\n", p.Describe())
		}
	}

	fmt.Fprintf(&b, "\nskipped (bad geometry): %d\n", s.SkippedBadGeometry)
	fmt.Fprintf(&b, "skipped (out of scope): %d\n", s.SkippedOutOfScope)
	fmt.Fprintf(&b, "skipped (no fix candidate): %d\n", s.SkippedNoCandidate)

	_, err := io.WriteString(w, b.String())
	return err
}

// Describe renders a one-line problem report for r.
func (r FeatureResult) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "id=%s", r.DisplayID)
	if r.Name != "" {
		fmt.Fprintf(&b, " name=%q", r.Name)
	}
	if r.HasLength {
		fmt.Fprintf(&b, " length=%.2f", r.Length)
	}
	fmt.Fprintf(&b, " category=%q: %d non-coincident vertices", r.Category, r.NonCoincident)
	if len(r.MissingEndpoints) > 0 {
		roles := make([]string, len(r.MissingEndpoints))
		for i, m := range r.MissingEndpoints {
			roles[i] = string(m)
		}
		fmt.Fprintf(&b, " (missing %s)", strings.Join(roles, ", "))
	}
	if len(r.NonCoincidentVertices) > 0 {
		nums := make([]string, len(r.NonCoincidentVertices))
		for i, n := range r.NonCoincidentVertices {
			nums[i] = fmt.Sprint(n)
		}
		fmt.Fprintf(&b, " at vertices %s", strings.Join(nums, ", "))
	}
	if r.Fixed > 0 {
		fmt.Fprintf(&b, ", %d fixed", r.Fixed)
	}
	return b.String()
}
