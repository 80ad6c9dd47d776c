package extract

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/harvest/models"
	"github.com/xuri/excelize/v2"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FormatOf maps a file extension to its tabular format tag, or "" when the
// extension is not supported. Excel means OOXML workbooks only; legacy
// binary .xls files are unsupported.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return models.FormatCSV
	case ".tsv":
		return models.FormatTSV
	case ".xlsx", ".xlsm":
		return models.FormatExcel
	case ".json":
		return models.FormatJSON
	}
	return ""
}

// ParseFile reads a downloaded export into records tagged with its format.
func ParseFile(file models.DownloadedFile) (*models.ExtractionResult, error) {
	format := file.Format
	if format == "" {
		format = FormatOf(file.Path)
	}

	var (
		res *models.ExtractionResult
		err error
	)
	switch format {
	case models.FormatCSV:
		res, err = parseDelimited(file.Path, ',', format)
	case models.FormatTSV:
		res, err = parseDelimited(file.Path, '\t', format)
	case models.FormatExcel:
		res, err = parseExcel(file.Path)
	case models.FormatJSON:
		res, err = parseJSON(file.Path)
	default:
		return nil, models.NewScrapeError(models.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported file type %q", filepath.Ext(file.Path)), nil)
	}
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeParseFailure,
			"failed to parse "+filepath.Base(file.Path), err)
	}
	return res, nil
}

func parseDelimited(path string, comma rune, format string) (*models.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return rowsToResult(format, rows), nil
}

func parseExcel(path string) (*models.ExtractionResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return models.Empty(), nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return rowsToResult(models.FormatExcel, rows), nil
}

// rowsToResult treats the first row as the header. Blank or repeated header
// cells get positional names; fully blank data rows are skipped.
func rowsToResult(format string, rows [][]string) *models.ExtractionResult {
	if len(rows) == 0 {
		return models.Empty()
	}
	header := columnNames(rows[0])

	var records []models.Record
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := make(models.Record, len(header))
		for i, cell := range row {
			for i >= len(header) {
				header = append(header, "col_"+strconv.Itoa(len(header)+1))
			}
			rec[header[i]] = strings.TrimSpace(cell)
		}
		for _, h := range header {
			if _, ok := rec[h]; !ok {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return models.NewRecords(format, header, records)
}

func columnNames(cells []string) []string {
	names := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		name := strings.Join(strings.Fields(c), " ")
		if name == "" {
			name = "col_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			seen[name] = 1
		}
		names[i] = name
	}
	return names
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseJSON accepts an array of objects, an array of scalars, a
// column-oriented object ({"col": [values...]}) or a single object.
func parseJSON(path string) (*models.ExtractionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	var records []models.Record
	switch v := doc.(type) {
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				records = append(records, objectRecord(obj))
			} else {
				records = append(records, models.Record{"value": scalarString(item)})
			}
		}
	case map[string]any:
		if cols, ok := columnOriented(v); ok {
			records = cols
		} else {
			records = []models.Record{objectRecord(v)}
		}
	default:
		return nil, fmt.Errorf("top-level JSON value must be an array or object")
	}
	return models.NewRecords(models.FormatJSON, nil, records), nil
}

func objectRecord(obj map[string]any) models.Record {
	rec := make(models.Record, len(obj))
	for k, val := range obj {
		rec[k] = scalarString(val)
	}
	return rec
}

func columnOriented(obj map[string]any) ([]models.Record, bool) {
	n := -1
	for _, val := range obj {
		arr, ok := val.([]any)
		if !ok || (n >= 0 && len(arr) != n) {
			return nil, false
		}
		n = len(arr)
	}
	if n <= 0 {
		return nil, false
	}
	records := make([]models.Record, n)
	for i := range records {
		records[i] = make(models.Record, len(obj))
	}
	for k, val := range obj {
		for i, cell := range val.([]any) {
			records[i][k] = scalarString(cell)
		}
	}
	return records, true
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
