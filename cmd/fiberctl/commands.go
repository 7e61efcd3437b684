package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/fiber-connectivity/core"
	"github.com/signalsfoundry/fiber-connectivity/internal/config"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := newApp(out, errOut)

	root := &cobra.Command{
		Use:           "fiberctl",
		Short:         "Check and repair fiber network layer connectivity",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "fiber.yaml", "path to the YAML or JSON project configuration")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&a.metricsOut, "metrics-out", "", "write Prometheus metrics to this textfile after the run")
	pf.BoolVar(&a.write, "write", false, "write committed layers back to their GeoJSON files")

	root.AddCommand(
		newConnectivityCmd(a),
		newDuplicatesCmd(a),
		newInvalidCmd(a),
		newUsageCmd(a),
		newScopesCmd(a),
	)
	return root
}

func newConnectivityCmd(a *app) *cobra.Command {
	var (
		check, target, scope string
		all, fix, noLimit    bool
	)
	cmd := &cobra.Command{
		Use:   "connectivity",
		Short: "Check that cable, duct or splice point vertices meet the infrastructure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, env *core.Env) error {
				kind, err := core.ParseCheckKind(check)
				if err != nil {
					return err
				}
				chk := a.cfg.Check(kind)
				if target != "" {
					chk.Target = target
				}
				req, err := a.connectivityRequest(kind, chk, scope, all)
				if err != nil {
					return err
				}
				req.Fix = chk.FixPolicy(fix)
				if noLimit {
					req.Fix.LimitDistance = false
				}

				rep, err := core.NewConnectivityService(env).Run(ctx, req)
				if err != nil {
					return err
				}
				return printConnectivity(a.out, rep)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&check, "check", string(core.CheckCables), "check to run: cables, ducts or splice_points")
	f.StringVar(&target, "target", "", "target layer, overriding the configured one")
	f.StringVar(&scope, "scope", "", "name of the working scope")
	f.BoolVar(&all, "all", false, "process the whole layer without a scope")
	f.BoolVar(&fix, "fix", false, "snap non-coincident vertices to the nearest reference vertex")
	f.BoolVar(&noLimit, "no-limit", false, "snap regardless of distance")
	return cmd
}

func (a *app) connectivityRequest(kind core.CheckKind, chk config.CheckConfig, scopeName string, all bool) (core.ConnectivityRequest, error) {
	target, err := a.editable(chk.Target)
	if err != nil {
		return core.ConnectivityRequest{}, err
	}
	infra, err := a.layers(chk.Infrastructure)
	if err != nil {
		return core.ConnectivityRequest{}, err
	}
	table, err := chk.CategoryTable(kind)
	if err != nil {
		return core.ConnectivityRequest{}, err
	}
	var splices, access []core.Layer
	if table.NeedsSubscriberSets() {
		if splices, err = a.layers(chk.SplicePoints); err != nil {
			return core.ConnectivityRequest{}, err
		}
		if access, err = a.layers(chk.AccessPoints); err != nil {
			return core.ConnectivityRequest{}, err
		}
	}
	rule, err := core.ParseScopeRule(chk.ScopeRule)
	if err != nil {
		return core.ConnectivityRequest{}, err
	}
	s, unscoped, err := a.scope(scopeName, all)
	if err != nil {
		return core.ConnectivityRequest{}, err
	}
	return core.ConnectivityRequest{
		Check:          kind,
		Target:         target,
		Infrastructure: infra,
		SplicePoints:   splices,
		AccessPoints:   access,
		Scope:          s,
		Unscoped:       unscoped,
		Rule:           rule,
		Categories:     &table,
		WorkingCRS:     a.cfg.WorkingCRS,
		Precision:      chk.Precision,
		QueryBuffer:    chk.QueryBuffer,
	}, nil
}

func newDuplicatesCmd(a *app) *cobra.Command {
	var (
		layer, scope                  string
		all, del, attrs, dirSensitive bool
	)
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find, and optionally delete, features with the same geometry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, env *core.Env) error {
				l, err := a.editable(layer)
				if err != nil {
					return err
				}
				s, unscoped, err := a.scope(scope, all)
				if err != nil {
					return err
				}
				dc := a.cfg.Duplicates
				rule, err := core.ParseScopeRule(dc.ScopeRule)
				if err != nil {
					return err
				}
				req := core.DuplicateRequest{
					Layer:                l,
					Scope:                s,
					Unscoped:             unscoped,
					Rule:                 &rule,
					WorkingCRS:           a.cfg.WorkingCRS,
					Precision:            dc.Precision,
					DirectionInsensitive: dc.DirectionInsensitive && !dirSensitive,
					CompareAttributes:    dc.CompareAttributes || attrs,
					IgnoredFields:        dc.IgnoredFields,
				}

				ds := core.NewDuplicateService(env)
				rep, err := ds.Find(ctx, req)
				if err != nil {
					return err
				}
				if err := printDuplicates(a.out, rep); err != nil {
					return err
				}
				if !del || len(rep.Groups) == 0 {
					return nil
				}
				n, err := ds.DeleteDuplicates(ctx, l, rep.Groups)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.out, "deleted features: %d\n", n)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&layer, "layer", "", "layer to search")
	f.StringVar(&scope, "scope", "", "name of the working scope")
	f.BoolVar(&all, "all", false, "search the whole layer without a scope")
	f.BoolVar(&del, "delete", false, "delete every duplicate but the first of each group")
	f.BoolVar(&attrs, "attributes", false, "also require equal attributes, ignoring identifier fields")
	f.BoolVar(&dirSensitive, "direction-sensitive", false, "treat reversed lines as different")
	return cmd
}

func newInvalidCmd(a *app) *cobra.Command {
	var (
		layer, scope string
		all, bridges bool
	)
	cmd := &cobra.Command{
		Use:   "invalid",
		Short: "List null, empty, invalid, zero-length and origin geometries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, env *core.Env) error {
				l, err := a.editable(layer)
				if err != nil {
					return err
				}
				s, unscoped, err := a.scope(scope, all)
				if err != nil {
					return err
				}
				ic := a.cfg.Invalid
				// Cable layers carry bridges by construction.
				allowBridges := ic.AllowBridges || bridges || a.cfg.InGroup(config.GroupCables, layer)
				rep, err := core.NewInvalidGeometryService(env).Find(ctx, core.InvalidRequest{
					Layer:      l,
					Scope:      s,
					Unscoped:   unscoped,
					WorkingCRS: a.cfg.WorkingCRS,
					Options: core.InvalidOptions{
						AllowBridges:    allowBridges,
						BridgeEpsilon:   ic.BridgeEpsilon,
						LengthPrecision: ic.LengthPrecision,
					},
				})
				if err != nil {
					return err
				}
				return printInvalid(a.out, rep)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&layer, "layer", "", "layer to search")
	f.StringVar(&scope, "scope", "", "name of the working scope")
	f.BoolVar(&all, "all", false, "search the whole layer without a scope")
	f.BoolVar(&bridges, "allow-bridges", false, "do not report two-vertex bridge lines as zero length (always on for cable layers)")
	return cmd
}

func newUsageCmd(a *app) *cobra.Command {
	var (
		scope, mr string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Mark infrastructure as used or unused by cables and splice points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, env *core.Env) error {
				s, _, err := a.scope(scope, false)
				if err != nil {
					return err
				}
				req, err := a.usageRequest(s, mr)
				if err != nil {
					return err
				}
				req.Overwrite = overwrite

				rep, err := core.NewUsageService(env).Run(ctx, req)
				if err != nil {
					return err
				}
				return printUsage(a.out, rep)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&scope, "scope", "", "name of the working scope")
	f.StringVar(&mr, "mr", "", "MR value stamped on infrastructure, overriding the scope attribute")
	f.BoolVar(&overwrite, "overwrite", false, "replace existing usage and MR values")
	return cmd
}

func (a *app) usageRequest(s model.Scope, mr string) (core.UsageRequest, error) {
	uc := a.cfg.Usage
	req := core.UsageRequest{
		Scope:       s,
		WorkingCRS:  a.cfg.WorkingCRS,
		Precision:   uc.Precision,
		UsageField:  uc.UsageField,
		MRField:     uc.MRField,
		UsedValue:   uc.UsedValue,
		UnusedValue: uc.UnusedValue,
	}
	rule, err := core.ParseScopeRule(uc.ScopeRule)
	if err != nil {
		return req, err
	}
	req.Rule = rule

	switch {
	case mr != "":
		req.MRValue = mr
	case uc.MRAttribute != "":
		if v, ok := s.Attributes[uc.MRAttribute]; ok && v != nil {
			req.MRValue = v
		}
	}

	for _, name := range a.cfg.Group(config.GroupInfrastructure) {
		l, err := a.editable(name)
		if err != nil {
			return req, err
		}
		req.Infrastructure = append(req.Infrastructure, l)
	}
	for _, name := range a.cfg.Group(config.GroupSetUsage) {
		l, err := a.editable(name)
		if err != nil {
			return req, err
		}
		role := core.UsageOther
		switch {
		case a.cfg.InGroup(config.GroupCables, name):
			role = core.UsageCable
		case a.cfg.InGroup(config.GroupSplicePoints, name):
			role = core.UsageSplice
		}
		req.Usage = append(req.Usage, core.UsageLayer{Layer: l, Role: role})
	}
	return req, nil
}

func newScopesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes",
		Short: "List the available working scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context, _ *core.Env) error {
				for _, s := range a.store.ListScopes() {
					if _, err := fmt.Fprintf(a.out, "%s\t%s\n", s.Name, s.CRS); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
