package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/signalsfoundry/fiber-connectivity/model"
)

// CheckKind names one of the three connectivity checks.
type CheckKind string

const (
	CheckCables       CheckKind = "cables"
	CheckDucts        CheckKind = "ducts"
	CheckSplicePoints CheckKind = "splice_points"
)

// ParseCheckKind validates a check name.
func ParseCheckKind(s string) (CheckKind, error) {
	switch k := CheckKind(strings.ToLower(strings.TrimSpace(s))); k {
	case CheckCables, CheckDucts, CheckSplicePoints:
		return k, nil
	}
	return "", fmt.Errorf("unknown check %q", s)
}

// VertexSelection chooses which vertices of a line are examined.
type VertexSelection int

const (
	SelectAll VertexSelection = iota
	SelectEndpoints
)

func (s VertexSelection) String() string {
	if s == SelectEndpoints {
		return "endpoints"
	}
	return "all"
}

// ParseVertexSelection accepts "all" or "endpoints".
func ParseVertexSelection(s string) (VertexSelection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return SelectAll, nil
	case "endpoints":
		return SelectEndpoints, nil
	}
	return SelectAll, fmt.Errorf("unknown vertex selection %q", s)
}

// TargetPolicy chooses which reference set a vertex is matched against.
type TargetPolicy int

const (
	// TargetInfrastructure matches every examined vertex against the
	// infrastructure set.
	TargetInfrastructure TargetPolicy = iota
	// TargetSubscriber matches the first vertex against splice points, the
	// last against access points and any other vertex against
	// infrastructure.
	TargetSubscriber
	// TargetInfrastructureOrAccess matches against infrastructure and
	// access points together.
	TargetInfrastructureOrAccess
)

func (p TargetPolicy) String() string {
	switch p {
	case TargetSubscriber:
		return "subscriber"
	case TargetInfrastructureOrAccess:
		return "infrastructure_or_access"
	}
	return "infrastructure"
}

// ParseTargetPolicy accepts the String forms of TargetPolicy.
func ParseTargetPolicy(s string) (TargetPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "infrastructure":
		return TargetInfrastructure, nil
	case "subscriber":
		return TargetSubscriber, nil
	case "infrastructure_or_access":
		return TargetInfrastructureOrAccess, nil
	}
	return TargetInfrastructure, fmt.Errorf("unknown target policy %q", s)
}

// MissingCategory labels features whose grouping attribute is empty.
const MissingCategory = "BRAK"

// Category is the checking policy applied to one group of features.
type Category struct {
	Name      string
	Selection VertexSelection
	Target    TargetPolicy
}

// CategoryTable maps grouping-attribute values to policies for one check.
type CategoryTable struct {
	Check       CheckKind
	GroupField  string
	NameField   string
	LengthField string
	Policies    map[string]Category
	Fallback    Category
}

// Default category values.
const (
	CategoryUnderground           = "doziemny"
	CategorySubscriberUnderground = "abonencki doziemny"
	CategorySubscriberAerial      = "abonencki napowietrzny"
	CategorySubscriberPlanned     = "abonencki planowany"
	CategoryTrunkUnderground      = "TOK ziemny"
)

// DefaultCategoryTable returns the stock policies for a check.
func DefaultCategoryTable(kind CheckKind) CategoryTable {
	switch kind {
	case CheckCables:
		return CategoryTable{
			Check:       kind,
			GroupField:  "rodzaj",
			NameField:   "nazwa",
			LengthField: "dl_tras",
			Policies: map[string]Category{
				CategoryUnderground:           {Selection: SelectEndpoints, Target: TargetInfrastructure},
				CategoryTrunkUnderground:      {Selection: SelectEndpoints, Target: TargetInfrastructure},
				CategorySubscriberUnderground: {Selection: SelectEndpoints, Target: TargetSubscriber},
				CategorySubscriberAerial:      {Selection: SelectAll, Target: TargetSubscriber},
				CategorySubscriberPlanned:     {Selection: SelectAll, Target: TargetSubscriber},
			},
			Fallback: Category{Selection: SelectAll, Target: TargetInfrastructure},
		}
	case CheckDucts:
		return CategoryTable{
			Check:       kind,
			GroupField:  "trakt",
			LengthField: "dl_tras",
			Policies: map[string]Category{
				CategoryUnderground:           {Selection: SelectEndpoints, Target: TargetInfrastructure},
				CategorySubscriberUnderground: {Selection: SelectEndpoints, Target: TargetInfrastructure},
				CategoryTrunkUnderground:      {Selection: SelectEndpoints, Target: TargetInfrastructure},
			},
			Fallback: Category{Selection: SelectAll, Target: TargetInfrastructure},
		}
	case CheckSplicePoints:
		return CategoryTable{
			Check:      kind,
			GroupField: "typ",
			NameField:  "nazwa",
			Fallback:   Category{Selection: SelectAll, Target: TargetInfrastructureOrAccess},
		}
	}
	return CategoryTable{Check: kind, Fallback: Category{Selection: SelectAll, Target: TargetInfrastructure}}
}

// Label returns the trimmed grouping value of f, or MissingCategory.
func (t CategoryTable) Label(f *model.Feature) string {
	if t.GroupField == "" {
		return MissingCategory
	}
	if v := f.StringAttr(t.GroupField); v != "" {
		return v
	}
	return MissingCategory
}

// Classify returns the policy for f, named after its grouping value.
func (t CategoryTable) Classify(f *model.Feature) Category {
	label := t.Label(f)
	c, ok := t.Policies[label]
	if !ok {
		c = t.Fallback
	}
	c.Name = label
	return c
}

// NeedsSubscriberSets reports whether any policy matches against splice or
// access points.
func (t CategoryTable) NeedsSubscriberSets() bool {
	if t.Fallback.Target != TargetInfrastructure {
		return true
	}
	for _, c := range t.Policies {
		if c.Target != TargetInfrastructure {
			return true
		}
	}
	return false
}

// PolicyNames lists the explicitly configured group values, sorted.
func (t CategoryTable) PolicyNames() []string {
	names := make([]string, 0, len(t.Policies))
	for n := range t.Policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
