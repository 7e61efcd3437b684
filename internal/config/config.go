// Package config loads the read-only project configuration: where layers and
// scopes live, which layers play which role, and per-check parameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/fiber-connectivity/core"
)

// Layer group names.
const (
	GroupInfrastructure   = "INFRASTRUCTURE_LAYERS"
	GroupCables           = "CABLE_LAYERS"
	GroupSetUsage         = "SET_USAGE_LAYERS"
	GroupProjectEssential = "PROJECT_ESSENTIAL_LAYERS"
	GroupSplicePoints     = "SPLICE_POINT_LAYERS"
	GroupAccessPoints     = "ACCESS_POINT_LAYERS"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the parsed configuration file. It is not mutated after Load.
type Config struct {
	WorkingCRS  string                 `yaml:"working_crs"`
	LayerGroups map[string][]string    `yaml:"layer_groups"`
	Layers      map[string]LayerSource `yaml:"layers"`
	Scopes      ScopeSource            `yaml:"scopes"`
	Checks      map[string]CheckConfig `yaml:"checks"`
	Duplicates  DuplicatesConfig       `yaml:"duplicates"`
	Invalid     InvalidConfig          `yaml:"invalid"`
	Usage       UsageConfig            `yaml:"usage"`
}

// LayerSource locates one GeoJSON layer file.
type LayerSource struct {
	Path string `yaml:"path"`
	CRS  string `yaml:"crs"`
}

// ScopeSource locates the scope polygons.
type ScopeSource struct {
	Path      string `yaml:"path"`
	CRS       string `yaml:"crs"`
	NameField string `yaml:"name_field"`
}

// CategoryOverride replaces or adds the policy for one group value.
type CategoryOverride struct {
	Vertices string `yaml:"vertices"` // all | endpoints
	Target   string `yaml:"target"`   // infrastructure | subscriber | infrastructure_or_access
}

// CheckConfig parameterises one connectivity check. Empty layer lists fall
// back to the matching layer group.
type CheckConfig struct {
	Target         string                      `yaml:"target"`
	GroupField     string                      `yaml:"group_field"`
	NameField      string                      `yaml:"name_field"`
	LengthField    string                      `yaml:"length_field"`
	Infrastructure []string                    `yaml:"infrastructure"`
	SplicePoints   []string                    `yaml:"splice_points"`
	AccessPoints   []string                    `yaml:"access_points"`
	Precision      int                         `yaml:"precision"`
	QueryBuffer    float64                     `yaml:"query_buffer"`
	MaxDistance    *float64                    `yaml:"max_distance"`
	LimitDistance  *bool                       `yaml:"limit_distance"`
	ScopeRule      string                      `yaml:"scope_rule"`
	Categories     map[string]CategoryOverride `yaml:"categories"`
}

// DuplicatesConfig parameterises the duplicate search.
type DuplicatesConfig struct {
	Precision            int      `yaml:"precision"`
	DirectionInsensitive bool     `yaml:"direction_insensitive"`
	CompareAttributes    bool     `yaml:"compare_attributes"`
	IgnoredFields        []string `yaml:"ignored_fields"`
	ScopeRule            string   `yaml:"scope_rule"`
}

// InvalidConfig parameterises the invalid-geometry search.
type InvalidConfig struct {
	AllowBridges    bool    `yaml:"allow_bridges"`
	BridgeEpsilon   float64 `yaml:"bridge_epsilon"`
	LengthPrecision int     `yaml:"length_precision"`
}

// UsageConfig parameterises infrastructure usage marking.
type UsageConfig struct {
	UsageField  string `yaml:"usage_field"`
	MRField     string `yaml:"mr_field"`
	MRAttribute string `yaml:"mr_attribute"` // scope attribute copied into MRField
	UsedValue   string `yaml:"used_value"`
	UnusedValue string `yaml:"unused_value"`
	Precision   int    `yaml:"precision"`
	ScopeRule   string `yaml:"scope_rule"`
}

// Default returns a configuration with every tunable at its stock value and
// no layers.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML (or JSON) configuration file. Relative
// layer and scope paths are resolved against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LayerGroups == nil {
		c.LayerGroups = map[string][]string{}
	}
	if c.Layers == nil {
		c.Layers = map[string]LayerSource{}
	}
	if c.Checks == nil {
		c.Checks = map[string]CheckConfig{}
	}
	if c.Scopes.NameField == "" {
		c.Scopes.NameField = "nazwa"
	}
	// Sources without a declared frame are taken to be stored in the
	// working frame.
	if c.Scopes.CRS == "" {
		c.Scopes.CRS = c.WorkingCRS
	}
	for name, l := range c.Layers {
		if l.CRS == "" {
			l.CRS = c.WorkingCRS
			c.Layers[name] = l
		}
	}
	for _, kind := range []core.CheckKind{core.CheckCables, core.CheckDucts, core.CheckSplicePoints} {
		chk := c.Checks[string(kind)]
		if chk.Precision == 0 {
			chk.Precision = core.DefaultVertexPrecision
		}
		if chk.QueryBuffer == 0 {
			chk.QueryBuffer = core.DefaultQueryBuffer
		}
		c.Checks[string(kind)] = chk
	}
	if c.Duplicates.Precision == 0 {
		c.Duplicates.Precision = core.DefaultDuplicatePrecision
	}
	if c.Duplicates.IgnoredFields == nil {
		c.Duplicates.IgnoredFields = append([]string(nil), core.DefaultIgnoredFields...)
	}
	if c.Duplicates.ScopeRule == "" {
		c.Duplicates.ScopeRule = "intersects"
	}
	if c.Invalid.BridgeEpsilon == 0 {
		c.Invalid.BridgeEpsilon = core.DefaultBridgeEpsilon
	}
	if c.Invalid.LengthPrecision == 0 {
		c.Invalid.LengthPrecision = core.DefaultLengthPrecision
	}
	if c.Usage.UsageField == "" {
		c.Usage.UsageField = core.DefaultUsageField
	}
	if c.Usage.MRField == "" {
		c.Usage.MRField = core.DefaultMRField
	}
	if c.Usage.UsedValue == "" {
		c.Usage.UsedValue = core.DefaultUsedValue
	}
	if c.Usage.UnusedValue == "" {
		c.Usage.UnusedValue = core.DefaultUnusedValue
	}
	if c.Usage.Precision == 0 {
		c.Usage.Precision = core.DefaultVertexPrecision
	}
}

func (c *Config) resolvePaths(base string) {
	for name, l := range c.Layers {
		if l.Path != "" && !filepath.IsAbs(l.Path) {
			l.Path = filepath.Join(base, l.Path)
			c.Layers[name] = l
		}
	}
	if c.Scopes.Path != "" && !filepath.IsAbs(c.Scopes.Path) {
		c.Scopes.Path = filepath.Join(base, c.Scopes.Path)
	}
}

// Validate reports configuration errors: unknown checks, grouped layers
// without a source, negative distances and unparsable policies.
func (c Config) Validate() error {
	var errs []error
	for name, l := range c.Layers {
		if strings.TrimSpace(l.Path) == "" {
			errs = append(errs, fmt.Errorf("layer %q has no path", name))
		}
	}
	for _, group := range sortedKeys(c.LayerGroups) {
		// Essential layers are checked against what is loaded, see
		// MissingEssential.
		if group == GroupProjectEssential {
			continue
		}
		for _, name := range c.LayerGroups[group] {
			if _, ok := c.Layers[name]; !ok {
				errs = append(errs, fmt.Errorf("group %s lists unknown layer %q", group, name))
			}
		}
	}
	for _, name := range sortedKeys(c.Checks) {
		chk := c.Checks[name]
		if _, err := core.ParseCheckKind(name); err != nil {
			errs = append(errs, err)
			continue
		}
		if chk.MaxDistance != nil && *chk.MaxDistance < 0 {
			errs = append(errs, fmt.Errorf("check %s: negative max_distance", name))
		}
		if chk.Precision < 0 || chk.Precision > 15 {
			errs = append(errs, fmt.Errorf("check %s: precision %d out of range", name, chk.Precision))
		}
		if _, err := core.ParseScopeRule(chk.ScopeRule); err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", name, err))
		}
		for value, o := range chk.Categories {
			if _, err := core.ParseVertexSelection(o.Vertices); err != nil {
				errs = append(errs, fmt.Errorf("check %s category %q: %w", name, value, err))
			}
			if _, err := core.ParseTargetPolicy(o.Target); err != nil {
				errs = append(errs, fmt.Errorf("check %s category %q: %w", name, value, err))
			}
		}
		for _, ref := range append(append(append([]string{chk.Target}, chk.Infrastructure...), chk.SplicePoints...), chk.AccessPoints...) {
			if ref == "" {
				continue
			}
			if _, ok := c.Layers[ref]; !ok {
				errs = append(errs, fmt.Errorf("check %s references unknown layer %q", name, ref))
			}
		}
	}
	if _, err := core.ParseScopeRule(c.Duplicates.ScopeRule); err != nil {
		errs = append(errs, fmt.Errorf("duplicates: %w", err))
	}
	if _, err := core.ParseScopeRule(c.Usage.ScopeRule); err != nil {
		errs = append(errs, fmt.Errorf("usage: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Group returns the layer names in a role group.
func (c Config) Group(name string) []string {
	return append([]string(nil), c.LayerGroups[name]...)
}

// InGroup reports whether layer belongs to group.
func (c Config) InGroup(group, layer string) bool {
	for _, n := range c.LayerGroups[group] {
		if n == layer {
			return true
		}
	}
	return false
}

// MissingEssential lists PROJECT_ESSENTIAL_LAYERS members absent from
// available, in group order.
func (c Config) MissingEssential(available []string) []string {
	have := make(map[string]bool, len(available))
	for _, n := range available {
		have[n] = true
	}
	var missing []string
	for _, n := range c.LayerGroups[GroupProjectEssential] {
		if !have[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

// Check returns the settings of one connectivity check with layer lists
// filled from the layer groups.
func (c Config) Check(kind core.CheckKind) CheckConfig {
	chk := c.Checks[string(kind)]
	if chk.Precision == 0 {
		chk.Precision = core.DefaultVertexPrecision
	}
	if chk.QueryBuffer == 0 {
		chk.QueryBuffer = core.DefaultQueryBuffer
	}
	if len(chk.Infrastructure) == 0 {
		chk.Infrastructure = c.Group(GroupInfrastructure)
	}
	if len(chk.SplicePoints) == 0 {
		chk.SplicePoints = c.Group(GroupSplicePoints)
	}
	if len(chk.AccessPoints) == 0 {
		chk.AccessPoints = c.Group(GroupAccessPoints)
	}
	return chk
}

// FixPolicy derives the auto-fix policy of a check. enabled comes from the
// caller since fixing is a per-run decision.
func (chk CheckConfig) FixPolicy(enabled bool) core.FixPolicy {
	p := core.FixPolicy{Enabled: enabled, LimitDistance: true, MaxDistance: core.DefaultMaxFixDistance}
	if chk.LimitDistance != nil {
		p.LimitDistance = *chk.LimitDistance
	}
	if chk.MaxDistance != nil {
		p.MaxDistance = *chk.MaxDistance
	}
	return p
}

// CategoryTable returns the stock table for kind with the configured field
// names and category overrides applied.
func (chk CheckConfig) CategoryTable(kind core.CheckKind) (core.CategoryTable, error) {
	t := core.DefaultCategoryTable(kind)
	if chk.GroupField != "" {
		t.GroupField = chk.GroupField
	}
	if chk.NameField != "" {
		t.NameField = chk.NameField
	}
	if chk.LengthField != "" {
		t.LengthField = chk.LengthField
	}
	if len(chk.Categories) == 0 {
		return t, nil
	}
	policies := make(map[string]core.Category, len(t.Policies)+len(chk.Categories))
	for k, v := range t.Policies {
		policies[k] = v
	}
	for value, o := range chk.Categories {
		sel, err := core.ParseVertexSelection(o.Vertices)
		if err != nil {
			return core.CategoryTable{}, fmt.Errorf("category %q: %w", value, err)
		}
		target, err := core.ParseTargetPolicy(o.Target)
		if err != nil {
			return core.CategoryTable{}, fmt.Errorf("category %q: %w", value, err)
		}
		policies[value] = core.Category{Selection: sel, Target: target}
	}
	t.Policies = policies
	return t, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
