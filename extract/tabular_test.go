package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/use-agent/harvest/models"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFormatOf(t *testing.T) {
	tests := map[string]string{
		"a.csv":        models.FormatCSV,
		"A.TSV":        models.FormatTSV,
		"report.xlsx":  models.FormatExcel,
		"legacy.xls":   "",
		"data.json":    models.FormatJSON,
		"archive.zip":  "",
		"no-extension": "",
	}
	for name, want := range tests {
		if got := FormatOf(name); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParseFile_CSV(t *testing.T) {
	path := writeFile(t, "export.csv", "\ufeffname,qty\napple,3\n\"pear, green\",5,extra\n,\n")

	res, err := ParseFile(models.DownloadedFile{Path: path})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if res.ContentType != models.FormatCSV {
		t.Errorf("content type = %q", res.ContentType)
	}
	if fmt.Sprint(res.Columns) != "[name qty col_3]" {
		t.Errorf("columns = %v", res.Columns)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %v", res.Records)
	}
	if r := res.Records[1]; r["name"] != "pear, green" || r["col_3"] != "extra" {
		t.Errorf("second record = %v", r)
	}
}

func TestParseFile_TSV(t *testing.T) {
	path := writeFile(t, "export.tsv", "a\tb\n1\t2\n")
	res, err := ParseFile(models.DownloadedFile{Path: path, Format: models.FormatTSV})
	if err != nil {
		t.Fatal(err)
	}
	if res.ContentType != models.FormatTSV || res.Records[0]["b"] != "2" {
		t.Errorf("result = %+v", res)
	}
}

func TestParseFile_InvalidUTF8(t *testing.T) {
	path := writeFile(t, "bad.csv", "name\n\xff\xfe\n")
	_, err := ParseFile(models.DownloadedFile{Path: path})
	if !models.HasCode(err, models.ErrCodeParseFailure) {
		t.Errorf("err = %v, want PARSE_FAILURE", err)
	}
}

func TestParseFile_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"Repo", "Stars"}, {"harvest", 12}, {"rod", 5000}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	res, err := ParseFile(models.DownloadedFile{Path: path})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if res.ContentType != models.FormatExcel || len(res.Records) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Records[1]["Repo"] != "rod" || res.Records[1]["Stars"] != "5000" {
		t.Errorf("record = %v", res.Records[1])
	}
}

func TestParseFile_CorruptExcel(t *testing.T) {
	path := writeFile(t, "broken.xlsx", "this is not a zip archive")
	_, err := ParseFile(models.DownloadedFile{Path: path})
	if !models.HasCode(err, models.ErrCodeParseFailure) {
		t.Errorf("err = %v, want PARSE_FAILURE", err)
	}
}

func TestParseFile_JSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []models.Record
	}{
		{"array of objects", `[{"a": 1, "b": "x"}, {"a": 2.5, "c": true, "d": null}]`,
			[]models.Record{{"a": "1", "b": "x"}, {"a": "2.5", "c": "true", "d": ""}}},
		{"array of scalars", `["x", 3]`,
			[]models.Record{{"value": "x"}, {"value": "3"}}},
		{"column oriented", `{"a": [1, 2], "b": ["x", "y"]}`,
			[]models.Record{{"a": "1", "b": "x"}, {"a": "2", "b": "y"}}},
		{"single object", `{"a": {"nested": 1}, "b": "x"}`,
			[]models.Record{{"a": `{"nested":1}`, "b": "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "data.json", tt.content)
			res, err := ParseFile(models.DownloadedFile{Path: path})
			if err != nil {
				t.Fatalf("ParseFile: %v", err)
			}
			if fmt.Sprint(res.Records) != fmt.Sprint(tt.want) {
				t.Errorf("records = %v, want %v", res.Records, tt.want)
			}
		})
	}
}

func TestParseFile_JSONErrors(t *testing.T) {
	for _, content := range []string{`{"a": [1, 2`, `"just a string"`} {
		path := writeFile(t, "data.json", content)
		if _, err := ParseFile(models.DownloadedFile{Path: path}); !models.HasCode(err, models.ErrCodeParseFailure) {
			t.Errorf("ParseFile(%q) err = %v, want PARSE_FAILURE", content, err)
		}
	}
}

func TestParseFile_Unsupported(t *testing.T) {
	for _, name := range []string{"export.pdf", "legacy.xls"} {
		path := writeFile(t, name, "\xd0\xcf\x11\xe0 binary")
		_, err := ParseFile(models.DownloadedFile{Path: path, Format: FormatOf(path)})
		if !models.HasCode(err, models.ErrCodeUnsupportedFormat) {
			t.Errorf("%s: err = %v, want UNSUPPORTED_FORMAT", name, err)
		}
	}
}
