package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/signalsfoundry/fiber-connectivity/core"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

func printConnectivity(w io.Writer, rep *core.ConnectivityReport) error {
	if err := rep.Summary.Render(w, rep.Check); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "changed features: %d (committed: %t)\n", rep.Changed, rep.Committed)
	return err
}

func printDuplicates(w io.Writer, rep *core.DuplicateReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- duplicates in %s ---\n", rep.Layer)
	fmt.Fprintf(&b, "searched features: %d\n", rep.Searched)
	fmt.Fprintf(&b, "skipped (invalid geometry): %d\n", rep.SkippedInvalid)
	fmt.Fprintf(&b, "duplicate groups: %d\n", len(rep.Groups))
	fmt.Fprintf(&b, "duplicates to remove: %d\n", rep.Duplicates())
	for _, g := range rep.Groups {
		fmt.Fprintf(&b, "  group %s: %s\n", g.Label, joinIDs(g.Features))
	}
	if len(rep.Divergent) > 0 {
		fmt.Fprintf(&b, "same geometry, different attributes: %d\n", rep.DivergentCount())
		for _, d := range rep.Divergent {
			parts := make([]string, len(d.Subclusters))
			for i, sub := range d.Subclusters {
				parts[i] = "[" + joinIDs(sub) + "]"
			}
			fmt.Fprintf(&b, "  %s\n", strings.Join(parts, " "))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func printInvalid(w io.Writer, rep *core.InvalidReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- invalid geometry in %s ---\n", rep.Layer)
	fmt.Fprintf(&b, "searched features: %d\n", rep.Searched)
	if rep.Bridges > 0 {
		fmt.Fprintf(&b, "bridges skipped: %d\n", rep.Bridges)
	}
	fmt.Fprintf(&b, "invalid features: %d\n", len(rep.Invalid))

	counts := rep.Count()
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(&b, "  %s: %d\n", r, counts[core.InvalidReason(r)])
	}
	for _, f := range rep.Invalid {
		fmt.Fprintf(&b, "  ! id=%s %s", f.DisplayID, f.Reason)
		if f.Detail != "" {
			fmt.Fprintf(&b, " (%s)", f.Detail)
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func printUsage(w io.Writer, rep *core.UsageReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- infrastructure usage ---\n")
	fmt.Fprintf(&b, "usage vertices: %d (cables %d, splice points %d)\n", rep.UsageVertices, rep.CableVertices, rep.SpliceVertices)
	for _, l := range rep.Layers {
		fmt.Fprintf(&b, "\nlayer: %s\n", l.Layer)
		fmt.Fprintf(&b, "  processed: %d\n", l.Processed)
		fmt.Fprintf(&b, "  touching cables: %d\n", l.TouchingCable)
		fmt.Fprintf(&b, "  touching only splice points: %d\n", l.OnlySplice)
		fmt.Fprintf(&b, "  touching other layers: %d\n", l.TouchingOther)
		fmt.Fprintf(&b, "  marked used: %d\n", l.MarkedUsed)
		fmt.Fprintf(&b, "  marked unused: %d\n", l.MarkedUnused)
		fmt.Fprintf(&b, "  MR stamped: %d\n", l.MRStamped)
		fmt.Fprintf(&b, "  skipped (value already set): %d\n", l.SkippedExisting)
		if l.SkippedNoGeometry > 0 {
			fmt.Fprintf(&b, "  skipped (no geometry): %d\n", l.SkippedNoGeometry)
		}
	}
	fmt.Fprintf(&b, "\nchanged features: %d (committed: %t)\n", rep.ChangedFeatures, rep.Committed)
	_, err := io.WriteString(w, b.String())
	return err
}

func joinIDs(fs []*model.Feature) string {
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = strconv.FormatInt(int64(f.ID), 10)
	}
	return strings.Join(ids, ", ")
}
