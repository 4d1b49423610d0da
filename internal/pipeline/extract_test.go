package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/vegplot-etl/internal/pipeline"
	"github.com/couchcryptid/vegplot-etl/internal/recipe"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileExtractor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "veg.txt", "Visit\tCode\tCover\nV1\tBETNAN\t4\n")
	writeFile(t, dir, "codes.csv", "code,name\nBETNAN,Betula nana\n ,blank\n")
	writeFile(t, dir, "site_visit.csv", "site_code,site_visit_code\nS1,V1\n")

	doc := `
dataset: swan
tables:
  vegetation_cover:
    input: {path: veg.txt, delimiter: tab}
    visits: site_visit.csv
    code_table: {path: codes.csv, code: code, name: name}
`
	r, err := recipe.Parse([]byte(doc), dir)
	require.NoError(t, err)
	spec, ok := r.Table(recipe.KindVegetation)
	require.True(t, ok)

	in, err := pipeline.NewFileExtractor(recipe.KindVegetation, spec, nil).Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Visit", "Code", "Cover"}, in.Source.Columns)
	assert.Equal(t, 1, in.Source.Len())
	assert.Equal(t, []string{"V1"}, in.Visits.Column("site_visit_code"))
	assert.Nil(t, in.Sites)
	assert.Equal(t, map[string]string{"BETNAN": "Betula nana"}, in.Codes)

	want, err := pipeline.DefaultTemplate(recipe.KindVegetation)
	require.NoError(t, err)
	assert.Equal(t, want, in.Template)
}

func TestFileExtractor_MissingSource(t *testing.T) {
	r, err := recipe.Parse([]byte("dataset: x\ntables:\n  site:\n    input: {path: nowhere.csv}\n"), t.TempDir())
	require.NoError(t, err)
	spec, _ := r.Table(recipe.KindSite)

	_, err = pipeline.NewFileExtractor(recipe.KindSite, spec, nil).Extract(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read source")
}

func TestFileExtractor_CodeTableColumns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "veg.csv", "site_visit_code,name_original,cover_percent\nV1,x,1\n")
	writeFile(t, dir, "codes.csv", "abbr,taxon\nBETNAN,Betula nana\n")

	doc := `
dataset: x
tables:
  vegetation_cover:
    input: {path: veg.csv}
    code_table: {path: codes.csv, code: code, name: name}
`
	r, err := recipe.Parse([]byte(doc), dir)
	require.NoError(t, err)
	spec, _ := r.Table(recipe.KindVegetation)

	_, err = pipeline.NewFileExtractor(recipe.KindVegetation, spec, nil).Extract(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code table")
}
