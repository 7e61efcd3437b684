package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsSummarySortedByCategory(t *testing.T) {
	s := NewStats()
	s.Record(FeatureResult{ID: 1, Category: "napowietrzny", Examined: 3, Coincident: 3, Outcome: OutcomeCoincident, Length: 10, HasLength: true})
	s.Record(FeatureResult{ID: 2, Category: "doziemny", Examined: 2, Coincident: 1, NonCoincident: 1, Unfixable: 1,
		NonCoincidentVertices: []int{2}, Outcome: OutcomeUnfixable, DisplayID: "NULL"})
	s.Record(FeatureResult{ID: 3, Skip: SkipOutOfScope})
	s.Record(FeatureResult{ID: 4, Skip: SkipBadGeometry, Category: "doziemny"})

	sum := s.Summary()
	require.Len(t, sum.Groups, 2)
	require.Equal(t, "doziemny", sum.Groups[0].Category)
	require.Equal(t, 2, sum.Groups[0].Processed)
	require.Equal(t, 3, sum.Totals.Processed)
	require.Equal(t, 5, sum.Totals.Examined)
	require.Equal(t, 10.0, sum.Totals.TotalLength)
	require.Equal(t, 1, sum.SkippedOutOfScope)
	require.Equal(t, 1, sum.SkippedBadGeometry)
	require.Equal(t, 1, sum.SkippedNoCandidate)

	var buf bytes.Buffer
	require.NoError(t, sum.Render(&buf, CheckDucts))
	out := buf.String()
	require.True(t, strings.Index(out, "category: doziemny") < strings.Index(out, "category: napowietrzny"))
	require.Contains(t, out, "id=NULL")
	require.Contains(t, out, "at vertices 2")
}

func TestDescribeSubscriberProblem(t *testing.T) {
	r := FeatureResult{
		DisplayID:             "17",
		Name:                  "AB-1",
		Category:              CategorySubscriberAerial,
		Length:                42.5,
		HasLength:             true,
		NonCoincident:         2,
		NonCoincidentVertices: []int{1, 4},
		MissingEndpoints:      []EndpointRole{RoleSplice, RoleAccess},
	}
	require.Equal(t,
		`id=17 name="AB-1" length=42.50 category="abonencki napowietrzny": 2 non-coincident vertices (missing splice, access) at vertices 1, 4`,
		r.Describe())
}
