package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/fiber-connectivity/kb"
	"github.com/signalsfoundry/fiber-connectivity/model"
)

const projectConfig = `
working_crs: "EPSG:2180"
layer_groups:
  INFRASTRUCTURE_LAYERS: [trakty]
  CABLE_LAYERS: [kable]
  SPLICE_POINT_LAYERS: [mufy]
  ACCESS_POINT_LAYERS: [pe]
  SET_USAGE_LAYERS: [kable, mufy]
  PROJECT_ESSENTIAL_LAYERS: [kable, trakty]
layers:
  kable:  {path: kable.geojson, crs: "EPSG:2180"}
  trakty: {path: trakty.geojson, crs: "EPSG:2180"}
  mufy:   {path: mufy.geojson, crs: "EPSG:2180"}
  pe:     {path: pe.geojson, crs: "EPSG:2180"}
scopes:
  path: zakresy.geojson
  crs: "EPSG:2180"
checks:
  cables:
    target: kable
duplicates:
  direction_insensitive: true
usage:
  mr_attribute: mr
`

var projectFiles = map[string]string{
	"kable.geojson": `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":1,"geometry":{"type":"LineString","coordinates":[[0,0],[50.4,0.3],[100,0]]},"properties":{"id":11,"rodzaj":"napowietrzny","nazwa":"K-1"}},
  {"type":"Feature","id":2,"geometry":{"type":"LineString","coordinates":[[0,0],[50,0]]},"properties":{"id":12,"rodzaj":"napowietrzny","nazwa":"K-2"}}
]}`,
	"trakty.geojson": `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":1,"geometry":{"type":"LineString","coordinates":[[0,0],[50,0]]},"properties":{"X_wykorzystanie":null,"X_MR":null}},
  {"type":"Feature","id":2,"geometry":{"type":"LineString","coordinates":[[50,0],[100,0]]},"properties":{"X_wykorzystanie":null,"X_MR":null}},
  {"type":"Feature","id":3,"geometry":{"type":"LineString","coordinates":[[50,0],[0,0]]},"properties":{"X_wykorzystanie":null,"X_MR":null}}
]}`,
	"mufy.geojson": `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[0,0]},"properties":{"typ":"mufa"}}
]}`,
	"pe.geojson": `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[100,0]},"properties":{"typ":"PE"}}
]}`,
	"zakresy.geojson": `{"type":"FeatureCollection","features":[
  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-10,-10],[110,-10],[110,10],[-10,10],[-10,-10]]]},"properties":{"nazwa":"Z1","mr":"MR-1"}},
  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[500,500],[510,500],[510,510],[500,510],[500,500]]]},"properties":{"nazwa":"A0"}},
  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"properties":{}}
]}`,
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fiber.yaml"), []byte(projectConfig), 0o644))
	for name, body := range projectFiles {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "fiber.yaml")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readLayer(t *testing.T, path, name string) *kb.Layer {
	t.Helper()
	l, err := kb.LoadGeoJSONFile(path, name, "EPSG:2180")
	require.NoError(t, err)
	return l
}

func feature(t *testing.T, l *kb.Layer, id model.FeatureID) *model.Feature {
	t.Helper()
	f, err := l.Feature(id)
	require.NoError(t, err)
	return f
}

func TestScopesListedByName(t *testing.T) {
	dir := writeProject(t)
	out, err := execute(t, dir, "scopes")
	require.NoError(t, err)
	require.Equal(t, "A0\tEPSG:2180\nZ1\tEPSG:2180\n", out)
}

func TestConnectivityFixWritesLayer(t *testing.T) {
	dir := writeProject(t)
	metrics := filepath.Join(dir, "fiber.prom")

	out, err := execute(t, dir, "connectivity", "--check", "cables", "--scope", "Z1", "--fix", "--write", "--metrics-out", metrics)
	require.NoError(t, err)
	require.Contains(t, out, "category: napowietrzny")
	require.Contains(t, out, `name="K-1"`)
	require.Contains(t, out, "changed features: 1 (committed: true)")

	cables := readLayer(t, filepath.Join(dir, "kable.geojson"), "kable")
	require.Equal(t, orb.LineString{{0, 0}, {50, 0}, {100, 0}}, feature(t, cables, 1).Geometry)
	require.Equal(t, orb.LineString{{0, 0}, {50, 0}}, feature(t, cables, 2).Geometry)

	raw, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(raw), `fiber_runs_total{operation="connectivity",outcome="ok"} 1`)
}

func TestConnectivityWithoutWriteLeavesFiles(t *testing.T) {
	dir := writeProject(t)
	_, err := execute(t, dir, "connectivity", "--scope", "Z1", "--fix")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "kable.geojson"))
	require.NoError(t, err)
	require.Equal(t, projectFiles["kable.geojson"], string(raw))
}

func TestConnectivityRequiresScope(t *testing.T) {
	dir := writeProject(t)
	_, err := execute(t, dir, "connectivity", "--check", "cables")
	require.ErrorIs(t, err, errScopeRequired)

	_, err = execute(t, dir, "connectivity", "--check", "wires", "--all")
	require.ErrorContains(t, err, `unknown check "wires"`)
}

func TestDuplicatesDeleteKeepsFirst(t *testing.T) {
	dir := writeProject(t)
	out, err := execute(t, dir, "duplicates", "--layer", "trakty", "--all", "--delete", "--write")
	require.NoError(t, err)
	require.Contains(t, out, "group A: 1, 3")
	require.Contains(t, out, "deleted features: 1")

	ducts := readLayer(t, filepath.Join(dir, "trakty.geojson"), "trakty")
	require.Equal(t, 2, ducts.Len())
	_, err = ducts.Feature(3)
	require.ErrorIs(t, err, kb.ErrFeatureNotFound)
}

func TestInvalidReportsNothingOnCleanLayer(t *testing.T) {
	dir := writeProject(t)
	out, err := execute(t, dir, "invalid", "--layer", "kable", "--all")
	require.NoError(t, err)
	require.Contains(t, out, "searched features: 2")
	require.Contains(t, out, "invalid features: 0")
}

const bridgeFeatures = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":1,"geometry":{"type":"LineString","coordinates":[[0,0],[50,0]]},"properties":{"id":11}},
  {"type":"Feature","id":2,"geometry":{"type":"LineString","coordinates":[[20,0],[20,0]]},"properties":{"id":12}}
]}`

func TestInvalidSkipsBridgesOnCableLayers(t *testing.T) {
	dir := writeProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kable.geojson"), []byte(bridgeFeatures), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trakty.geojson"), []byte(bridgeFeatures), 0o644))

	out, err := execute(t, dir, "invalid", "--layer", "kable", "--all")
	require.NoError(t, err)
	require.Contains(t, out, "bridges skipped: 1")
	require.Contains(t, out, "invalid features: 0")

	// Outside the cable group the same line is a zero-length error unless
	// bridges are allowed explicitly.
	out, err = execute(t, dir, "invalid", "--layer", "trakty", "--all")
	require.NoError(t, err)
	require.Contains(t, out, "invalid features: 1")
	require.Contains(t, out, "zero length: 1")

	out, err = execute(t, dir, "invalid", "--layer", "trakty", "--all", "--allow-bridges")
	require.NoError(t, err)
	require.Contains(t, out, "bridges skipped: 1")
	require.Contains(t, out, "invalid features: 0")
}

func TestUsageMarksInfrastructure(t *testing.T) {
	dir := writeProject(t)
	out, err := execute(t, dir, "usage", "--scope", "Z1", "--write")
	require.NoError(t, err)
	require.Contains(t, out, "layer: trakty")
	require.Contains(t, out, "marked used: 3")

	ducts := readLayer(t, filepath.Join(dir, "trakty.geojson"), "trakty")
	for _, id := range []model.FeatureID{1, 2, 3} {
		f := feature(t, ducts, id)
		require.Equal(t, "TAK", f.Attributes["X_wykorzystanie"])
		require.Equal(t, "MR-1", f.Attributes["X_MR"])
	}
}

func TestMissingLayerFile(t *testing.T) {
	dir := writeProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "pe.geojson")))
	_, err := execute(t, dir, "scopes")
	require.Error(t, err)
}
