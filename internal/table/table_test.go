package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() *Table {
	t := New("Plot", "Sample_Date", "Cover")
	t.Append(Row{"Plot": "A1", "Sample_Date": "2023-07-16", "Cover": "10"})
	t.Append(Row{"Plot": "A2", "Sample_Date": "2023-07-17", "Cover": ""})
	t.Append(Row{"Plot": "A1", "Sample_Date": "2023-07-16", "Cover": "5"})
	return t
}

func TestRenameAndSelect(t *testing.T) {
	tbl := sampleTable()
	tbl.Rename(map[string]string{"Plot": "site_code", "Cover": "cover_percent"})

	assert.Equal(t, []string{"site_code", "Sample_Date", "cover_percent"}, tbl.Columns)
	assert.Equal(t, "A1", tbl.Rows[0]["site_code"])
	_, stale := tbl.Rows[0]["Plot"]
	assert.False(t, stale)

	out, err := tbl.Select([]string{"cover_percent", "site_code"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cover_percent", "site_code"}, out.Columns)
	assert.Equal(t, Row{"cover_percent": "10", "site_code": "A1"}, out.Rows[0])
}

func TestSelectMissingColumn(t *testing.T) {
	_, err := sampleTable().Select([]string{"Plot", "dead_status", "cover_type"})
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "dead_status, cover_type")
}

func TestSetApplyFilter(t *testing.T) {
	tbl := sampleTable()
	tbl.Set("project_code", "nps_swan_2024")
	tbl.Apply("cover_type", func(Row) string { return "top foliar cover" })

	assert.True(t, tbl.Has("project_code"))
	assert.Equal(t, []string{"nps_swan_2024", "nps_swan_2024", "nps_swan_2024"}, tbl.Column("project_code"))

	kept := tbl.Filter(func(r Row) bool { return r["Cover"] != "" })
	assert.Equal(t, 2, kept.Len())
	assert.Equal(t, 3, tbl.Len())
}

func TestUniqueDuplicatesNulls(t *testing.T) {
	tbl := sampleTable()

	assert.Equal(t, []string{"A1", "A2"}, tbl.Unique("Plot"))
	assert.Equal(t, []string{"A1|2023-07-16"}, tbl.Duplicates("Plot", "Sample_Date"))
	assert.Equal(t, map[string]int{"Cover": 1}, tbl.NullCounts())
	assert.Empty(t, tbl.NullCounts("Plot"))
}

func TestAntiJoin(t *testing.T) {
	tbl := sampleTable()

	assert.Equal(t, []string{"A2"}, tbl.AntiJoin("Plot", []string{"A1", "B7"}))
	assert.Equal(t, []string{"B7"}, Difference([]string{"A1", "B7", "B7"}, tbl.Column("Plot")))
}

func TestSortByAndIndex(t *testing.T) {
	tbl := sampleTable()
	tbl.SortBy("Plot", "Cover")

	assert.Equal(t, []string{"10", "5", ""}, tbl.Column("Cover"), "values sort as text")

	idx := tbl.Index("Plot")
	assert.Equal(t, "10", idx["A1"]["Cover"])
}

func TestClone(t *testing.T) {
	tbl := sampleTable()
	c := tbl.Clone()
	c.Rows[0]["Plot"] = "Z9"

	assert.Equal(t, "A1", tbl.Rows[0]["Plot"])
}

func TestReadCSV(t *testing.T) {
	data := "\ufeffPlot, Cover ,Notes\n A1 ,10,\n,,\nA2,5\n"

	tbl, err := ReadCSV(strings.NewReader(data), ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Plot", "Cover", "Notes"}, tbl.Columns)
	want := []Row{
		{"Plot": "A1", "Cover": "10", "Notes": ""},
		{"Plot": "A2", "Cover": "5", "Notes": ""},
	}
	if diff := cmp.Diff(want, tbl.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVDelimiterAndEncoding(t *testing.T) {
	// "Épinette" encoded as Windows-1252.
	data := []byte("name|cover\n\xc9pinette|3\n")

	tbl, err := ReadCSV(bytes.NewReader(data), ReadOptions{Delimiter: '|', Encoding: EncodingWindows1252})
	require.NoError(t, err)

	assert.Equal(t, "Épinette", tbl.Rows[0]["name"])
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), ReadOptions{})
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestWriteFileAndLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "03_site.csv")

	tbl := New("site_code", "comment")
	tbl.Append(Row{"site_code": "A1", "comment": "wet, \"boggy\""})
	require.NoError(t, WriteFile(path, tbl))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "site_code,comment\nA1,\"wet, \"\"boggy\"\"\"\n", string(data))

	cols, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"site_code", "comment"}, cols)

	back, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "wet, \"boggy\"", back.Rows[0]["comment"])
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Plot", "Cover"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"A1", 12.5}))
	_, err := f.NewSheet("Species")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Species", "A1", &[]any{"code", "name"}))
	require.NoError(t, f.SetSheetRow("Species", "A2", &[]any{"BETNAN", "Betula nana"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	first, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Plot", "Cover"}, first.Columns)
	assert.Equal(t, "12.5", first.Rows[0]["Cover"])

	species, err := Read(path, ReadOptions{Sheet: "Species"})
	require.NoError(t, err)
	assert.Equal(t, "Betula nana", species.Rows[0]["name"])

	_, err = Read(path, ReadOptions{Sheet: "Missing"})
	require.Error(t, err)
}
