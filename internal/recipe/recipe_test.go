package recipe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "nps_swan_2024.yaml")
	r, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nps_swan_2024", r.Dataset)

	site, ok := r.Table(KindSite)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("testdata", "source", "swan_plots.xlsx"), site.Input.Path)
	assert.Equal(t, "plots", site.Input.Sheet)
	assert.Equal(t, filepath.Join("testdata", "processed", "site.csv"), site.Output)
	assert.Equal(t, "site_code", site.Rename["Plot_ID"])
	require.Len(t, site.SiteCode, 1)
	assert.Equal(t, "SWAN$1", site.SiteCode[0].Replace)
	assert.Equal(t, "GPS_Error_m", site.Coordinates.HError)

	veg, ok := r.Table(KindVegetation)
	require.True(t, ok)
	assert.Equal(t, ModeLPI, veg.Mode)
	assert.Equal(t, []string{"Top", "Lower1", "Lower2", "Surface"}, veg.LPI.Strata)
	assert.Equal(t, "Top_Dead", veg.LPI.DeadFlags["Top"])
	assert.Equal(t, filepath.Join("testdata", "processed", "site_visit.csv"), veg.Visits)
	assert.Equal(t, "windows-1252", veg.Input.Encoding)

	_, ok = r.Table(KindTussock)
	assert.False(t, ok)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read recipe")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "no dataset",
			doc:  "tables:\n  site:\n    input: {path: a.csv}\n",
			want: "dataset is required",
		},
		{
			name: "no tables",
			doc:  "dataset: x\n",
			want: "at least one table",
		},
		{
			name: "unknown table",
			doc:  "dataset: x\ntables:\n  soils:\n    input: {path: a.csv}\n",
			want: `unknown table "soils"`,
		},
		{
			name: "missing input",
			doc:  "dataset: x\ntables:\n  site:\n    rename: {a: b}\n",
			want: "site: input.path is required",
		},
		{
			name: "bad mode",
			doc:  "dataset: x\ntables:\n  vegetation_cover:\n    input: {path: a.csv}\n    mode: quadrat\n",
			want: `unknown mode "quadrat"`,
		},
		{
			name: "lpi without layout",
			doc:  "dataset: x\ntables:\n  vegetation_cover:\n    input: {path: a.csv}\n    mode: lpi\n",
			want: "lpi layout must be",
		},
		{
			name: "abiotic lpi without codes",
			doc: "dataset: x\ntables:\n  abiotic_top_cover:\n    input: {path: a.csv}\n    mode: lpi\n" +
				"    lpi: {layout: long, transect: T, point: P, code: C}\n",
			want: "lpi mode needs abiotic_codes",
		},
		{
			name: "cover class without scale",
			doc:  "dataset: x\ntables:\n  vegetation_cover:\n    input: {path: a.csv}\n    mode: cover_class\n",
			want: "needs cover_scale or cover_classes",
		},
		{
			name: "unsupported crs",
			doc:  "dataset: x\ntables:\n  site:\n    input: {path: a.csv}\n    coordinates: {crs: 'EPSG:32606'}\n",
			want: `unsupported crs "EPSG:32606"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "/data")
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("dataset: x\ntables:\n  site:\n    input: {path: a.csv}\n    renmae: {a: b}\n"), "/data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse recipe")
}

func TestParse_AbsolutePathsKept(t *testing.T) {
	r, err := Parse([]byte("dataset: x\ntables:\n  site:\n    input: {path: /abs/a.csv}\n    output: /out/site.csv\n"), "/data")
	require.NoError(t, err)

	site, _ := r.Table(KindSite)
	assert.Equal(t, "/abs/a.csv", site.Input.Path)
	assert.Equal(t, "/out/site.csv", site.Output)
}

func TestConstantsFor(t *testing.T) {
	doc := `
dataset: x
project_code: usfws_selawik_2010
constants:
  data_tier: ecological land classification
  homogeneous: "TRUE"
tables:
  site_visit:
    input: {path: a.csv}
    constants:
      homogeneous: "FALSE"
  site:
    input: {path: b.csv}
`
	r, err := Parse([]byte(doc), "/data")
	require.NoError(t, err)

	visit := r.ConstantsFor(KindSiteVisit)
	assert.Equal(t, "usfws_selawik_2010", visit["project_code"])
	assert.Equal(t, "FALSE", visit["homogeneous"])
	assert.Equal(t, "ecological land classification", visit["data_tier"])

	site := r.ConstantsFor(KindSite)
	assert.Equal(t, "usfws_selawik_2010", site["establishing_project_code"])
	assert.NotContains(t, site, "project_code")

	project := r.ConstantsFor(KindProject)
	assert.Equal(t, "usfws_selawik_2010", project["project_code"])
}

func TestParse_ProjectAndEnvironment(t *testing.T) {
	doc := `
dataset: abr_various_2022
tables:
  project:
    input: {path: project.xlsx}
  environment:
    input: {path: els.txt, delimiter: "|"}
    value_maps:
      dominant_texture_40_cm: {loamy: loam}
`
	r, err := Parse([]byte(doc), "/data")
	require.NoError(t, err)

	env, ok := r.Table(KindEnvironment)
	require.True(t, ok)
	assert.Equal(t, "loam", env.Values["dominant_texture_40_cm"]["loamy"])
	assert.Equal(t, "/data/processed/environment.csv", env.Output)

	project, ok := r.Table(KindProject)
	require.True(t, ok)
	assert.Equal(t, "/data/project.xlsx", project.Input.Path)

	assert.Equal(t, []string{KindProject, KindSite, KindSiteVisit, KindEnvironment}, Kinds[:4], "parents are built first")
}

func TestInputOptions(t *testing.T) {
	assert.Equal(t, '\t', Input{Delimiter: "tab"}.Options().Delimiter)
	assert.Equal(t, '\t', Input{Delimiter: `\t`}.Options().Delimiter)
	assert.Equal(t, ';', Input{Delimiter: ";"}.Options().Delimiter)
	assert.Equal(t, rune(0), Input{}.Options().Delimiter)
	assert.Equal(t, "Sheet2", Input{Sheet: "Sheet2"}.Options().Sheet)
}
