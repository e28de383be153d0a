package statement

import (
	"fmt"
	"io"
)

// RawRow is one source record as a provider-specific column/tag name to
// raw string value mapping. Rows are ephemeral: produced by a RowReader,
// consumed once by the field resolver, never persisted.
type RawRow map[string]string

// MaxPreviewRows bounds how many source rows are scanned during preview
// generation. The commit phase is not capped; it processes whatever row
// set the caller confirmed.
const MaxPreviewRows = 100

// RowReader streams RawRows from a statement file. Next returns io.EOF
// when the input is exhausted. Reset rewinds to the first row so the
// same reader can be replayed from the start.
type RowReader interface {
	Next() (RawRow, error)
	Reset()

	// Skipped reports how many source rows were dropped at parse level
	// (column-count mismatches and the like). These never reach the
	// orchestrator and are not import failures.
	Skipped() int
}

// NewReader builds a RowReader for the given format over the full file
// content. Readers hold the content in memory, which the 10 MiB upload
// ceiling keeps bounded.
func NewReader(format Format, content []byte) (RowReader, error) {
	switch format {
	case FormatCSV:
		return newCSVReader(content)
	case FormatXLS, FormatXLSX:
		return newWorkbookReader(content)
	case FormatQIF:
		return newQIFReader(content), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ReadRows drains up to limit rows from the reader. A limit <= 0 reads
// everything.
func ReadRows(r RowReader, limit int) ([]RawRow, error) {
	var rows []RawRow
	for limit <= 0 || len(rows) < limit {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
