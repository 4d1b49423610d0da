package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
	"github.com/couchcryptid/vegplot-etl/internal/reference"
)

// isolateEnv clears every setting that would reach outside the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AKVEG_DATABASE_URL", "AKVEG_CREDENTIALS_FILE", "REFERENCE_CACHE",
		"BOUNDARY_FILE", "KAFKA_ENABLED", "S3_BUCKET", "MAPBOX_TOKEN",
		"MAPBOX_ENABLED", "PUSHGATEWAY_URL", "LOG_FORMAT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const tussockRecipe = `dataset: swan
tables:
  whole_tussock_cover:
    input: {path: tussock.csv}
    visit_key: {column: Visit}
    cover_column: Tussock
    cover_type: top cover
`

func TestTussockCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), tussockRecipe)
	writeFile(t, filepath.Join(dir, "tussock.csv"), "Visit,Tussock\nV2,\nV1,12.5\n")

	report := filepath.Join(dir, "qc.csv")
	require.NoError(t, execute(t, "tussock", "--recipe", filepath.Join(dir, "recipe.yaml"), "--report", report))

	got, err := os.ReadFile(filepath.Join(dir, "processed", "whole_tussock_cover.csv"))
	require.NoError(t, err)
	assert.Equal(t, "site_visit_code,cover_type,tussock_percent_cover\nV1,top cover,12.5\nV2,top cover,-999\n", string(got))
	assert.FileExists(t, report)
}

func TestTussockCommand_OutOverride(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), tussockRecipe)
	writeFile(t, filepath.Join(dir, "tussock.csv"), "Visit,Tussock\nV1,12.5\n")

	out := filepath.Join(dir, "elsewhere", "tussock.csv")
	require.NoError(t, execute(t, "tussock", "-r", filepath.Join(dir, "recipe.yaml"), "--out", out))
	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "processed", "whole_tussock_cover.csv"))
}

func TestTussockCommand_Strict(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), tussockRecipe)
	writeFile(t, filepath.Join(dir, "tussock.csv"), "Visit,Tussock\nV1,150\n")

	err := execute(t, "tussock", "--recipe", filepath.Join(dir, "recipe.yaml"), "--strict")
	require.ErrorIs(t, err, pipeline.ErrStrictQC)
	assert.NoFileExists(t, filepath.Join(dir, "processed", "whole_tussock_cover.csv"))
}

const vegcoverRecipe = `dataset: swan
tables:
  vegetation_cover:
    input: {path: veg.csv}
    visit_key: {column: site_visit_code}
    name_column: name_original
    cover_column: cover_percent
`

func TestVegcoverCommand_MissingReferenceCache(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), vegcoverRecipe)
	writeFile(t, filepath.Join(dir, "veg.csv"), "site_visit_code,name_original,cover_percent\nV1,Not a real plant,5\n")
	cache := filepath.Join(dir, "typo", "refs.db")
	t.Setenv("REFERENCE_CACHE", cache)

	err := execute(t, "vegcover", "--recipe", filepath.Join(dir, "recipe.yaml"), "--strict")
	require.ErrorIs(t, err, reference.ErrEmptyCache)
	assert.NoFileExists(t, cache, "a mistyped cache path must not create a database")
	assert.NoDirExists(t, filepath.Join(dir, "typo"))
	assert.NoFileExists(t, filepath.Join(dir, "processed", "vegetation_cover.csv"))
}

func TestProjectCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), `dataset: yukonflats
project_code: fws_yukonflats_2025
tables:
  project:
    input: {path: project.csv}
`)
	writeFile(t, filepath.Join(dir, "project.csv"),
		"project_name,originator,funder,manager,completion,year_start,year_end,project_description,private\n"+
			"Yukon Flats Bison Habitat,USFWS,USFWS,Hunter Gravley,finished,2025,2025,Line-point intercept plots,\n")

	require.NoError(t, execute(t, "project", "--recipe", filepath.Join(dir, "recipe.yaml")))

	got, err := os.ReadFile(filepath.Join(dir, "processed", "project.csv"))
	require.NoError(t, err)
	assert.Equal(t, "project_code,project_name,originator,funder,manager,completion,year_start,year_end,project_description,private\n"+
		"fws_yukonflats_2025,Yukon Flats Bison Habitat,USFWS,USFWS,Hunter Gravley,finished,2025,2025,Line-point intercept plots,FALSE\n",
		string(got))
}

func TestTableCommand_MissingSection(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), tussockRecipe)

	err := execute(t, "site", "--recipe", filepath.Join(dir, "recipe.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no site section")
}

func TestTableCommand_RequiresRecipe(t *testing.T) {
	isolateEnv(t)
	err := execute(t, "vegcover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recipe")
}

func TestRunCommand_RejectsOut(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "recipe.yaml"), tussockRecipe)

	err := execute(t, "run", "--recipe", filepath.Join(dir, "recipe.yaml"), "--out", "x.csv")
	require.Error(t, err)
}

func TestRedactCommand_RequiresConfirmation(t *testing.T) {
	isolateEnv(t)
	require.ErrorIs(t, execute(t, "redact"), errConfirm)
}

func TestRedactCommand_RequiresDatabase(t *testing.T) {
	isolateEnv(t)
	require.ErrorIs(t, execute(t, "redact", "--yes"), errNoDatabase)
}

func TestQueryCommand_RequiresDatabase(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "q.sql"), "SELECT 1")
	require.ErrorIs(t, execute(t, "query", filepath.Join(dir, "q.sql")), errNoDatabase)
}

func TestRefsPull_RequiresCachePath(t *testing.T) {
	isolateEnv(t)
	err := execute(t, "refs", "pull")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFERENCE_CACHE")
}

func TestCorrectCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "site.csv"), "site_code,establishing_project_code,latitude_dd,longitude_dd\nS1,p1,61.2,-149.9\nS2,p1,61.3,-149.8\n")
	writeFile(t, filepath.Join(dir, "site_visit.csv"), "site_visit_code,project_code,site_code,observe_date\nS1_20230716,p1,S1,2023-07-16\n")
	writeFile(t, filepath.Join(dir, "vegetation_cover.csv"), "site_visit_code,name_original,cover_percent\nS1_20230716,Betula nana,12\n")

	out := filepath.Join(dir, "fixed")
	issues := filepath.Join(dir, "issues")
	require.NoError(t, execute(t, "correct", dir, "--out", out, "--issues", issues))

	assert.FileExists(t, filepath.Join(out, "site.csv"))
	entries, err := os.ReadDir(issues)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^issues_\d{8}\.csv$`, entries[0].Name())
}

func TestCorrectCommand_NeedsDir(t *testing.T) {
	isolateEnv(t)
	require.Error(t, execute(t, "correct"))
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, "", reportPath("", "site", true))
	assert.Equal(t, "qc.csv", reportPath("qc.csv", "site", false))
	assert.Equal(t, "out/qc_site_visit.csv", reportPath("out/qc.csv", "site_visit", true))
}

func TestRootCommand_Tree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"project", "site", "visit", "environment", "vegcover", "abiotic", "tussock", "taxonomy", "run", "correct", "redact", "query", "refs"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, flag := range []string{"recipe", "strict", "report", "out"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}
