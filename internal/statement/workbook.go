package statement

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// workbookReader serves rows from an Excel export. The file is decoded
// once up front into a cell grid; iteration then follows the same
// header-zip semantics as the delimited reader.
//
// Only the modern xlsx container (a zip of XML parts) is decoded.
// Legacy binary .xls files pass the upload allowlist but fail here with
// a descriptive error asking for a re-export.
type workbookReader struct {
	header  []string
	rows    [][]string
	pos     int
	skipped int
}

func newWorkbookReader(content []byte) (*workbookReader, error) {
	grid, err := decodeWorkbook(content)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("workbook: empty sheet")
	}
	return &workbookReader{header: grid[0], rows: grid[1:]}, nil
}

func (w *workbookReader) Next() (RawRow, error) {
	for w.pos < len(w.rows) {
		record := w.rows[w.pos]
		w.pos++

		if len(record) > len(w.header) || isBlankRecord(record) {
			w.skipped++
			continue
		}

		row := make(RawRow, len(w.header))
		for i, name := range w.header {
			if i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		return row, nil
	}
	return nil, io.EOF
}

func (w *workbookReader) Reset() {
	w.pos = 0
	w.skipped = 0
}

func (w *workbookReader) Skipped() int {
	return w.skipped
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// xlsx XML shapes, limited to the parts a tabular bank export uses.

type xlsxSharedStrings struct {
	XMLName xml.Name   `xml:"sst"`
	Items   []xlsxText `xml:"si"`
}

type xlsxText struct {
	T    *string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (t xlsxText) value() string {
	if t.T != nil {
		return *t.T
	}
	var b strings.Builder
	for _, run := range t.Runs {
		b.WriteString(run.T)
	}
	return b.String()
}

type xlsxWorksheet struct {
	XMLName xml.Name  `xml:"worksheet"`
	Rows    []xlsxRow `xml:"sheetData>row"`
}

type xlsxRow struct {
	Cells []xlsxCell `xml:"c"`
}

type xlsxCell struct {
	Ref    string    `xml:"r,attr"`
	Type   string    `xml:"t,attr"`
	Value  string    `xml:"v"`
	Inline *xlsxText `xml:"is"`
}

// decodeWorkbook extracts the first worksheet of an xlsx archive into a
// dense [][]string grid, resolving shared strings along the way.
func decodeWorkbook(content []byte) ([][]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("workbook: not an xlsx archive (legacy .xls must be re-exported as .xlsx): %w", err)
	}

	shared, err := readSharedStrings(zr)
	if err != nil {
		return nil, err
	}

	sheetFile := firstWorksheet(zr)
	if sheetFile == nil {
		return nil, fmt.Errorf("workbook: no worksheet found")
	}

	var sheet xlsxWorksheet
	if err := decodeZipXML(sheetFile, &sheet); err != nil {
		return nil, fmt.Errorf("workbook: decoding worksheet: %w", err)
	}

	grid := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		record := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			col := columnIndex(cell.Ref)
			for len(record) < col {
				record = append(record, "")
			}
			record = append(record, cellValue(cell, shared))
		}
		grid = append(grid, record)
	}
	return grid, nil
}

func readSharedStrings(zr *zip.Reader) ([]string, error) {
	for _, f := range zr.File {
		if f.Name != "xl/sharedStrings.xml" {
			continue
		}
		var sst xlsxSharedStrings
		if err := decodeZipXML(f, &sst); err != nil {
			return nil, fmt.Errorf("workbook: decoding shared strings: %w", err)
		}
		out := make([]string, len(sst.Items))
		for i, item := range sst.Items {
			out[i] = item.value()
		}
		return out, nil
	}
	// Workbooks with only inline or numeric cells carry no shared
	// string table.
	return nil, nil
}

func firstWorksheet(zr *zip.Reader) *zip.File {
	var sheets []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			sheets = append(sheets, f)
		}
	}
	if len(sheets) == 0 {
		return nil
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].Name < sheets[j].Name })
	return sheets[0]
}

func decodeZipXML(f *zip.File, v interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

func cellValue(cell xlsxCell, shared []string) string {
	switch cell.Type {
	case "s":
		idx, err := strconv.Atoi(cell.Value)
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		if cell.Inline != nil {
			return cell.Inline.value()
		}
		return ""
	default:
		return cell.Value
	}
}

// columnIndex converts the letter part of a cell reference ("C12") to a
// zero-based column number.
func columnIndex(ref string) int {
	col := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A') + 1
	}
	if col == 0 {
		return 0
	}
	return col - 1
}
