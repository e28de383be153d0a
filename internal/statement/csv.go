package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// csvReader streams RawRows from a delimited text export. The first
// record is the header; every following record is zipped against it by
// position. Records whose field count disagrees with the header are
// skipped at parse level, not surfaced as row failures.
type csvReader struct {
	content []byte
	header  []string
	r       *csv.Reader
	skipped int
}

func newCSVReader(content []byte) (*csvReader, error) {
	cr := &csvReader{content: content}
	if err := cr.rewind(); err != nil {
		return nil, err
	}
	return cr, nil
}

func (c *csvReader) rewind() error {
	r := csv.NewReader(bytes.NewReader(c.content))
	// Field counts are validated against the header manually so that
	// mismatched rows can be skipped instead of aborting the stream.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return fmt.Errorf("csv: empty file")
	}
	if err != nil {
		return fmt.Errorf("csv: reading header: %w", err)
	}

	c.header = header
	c.r = r
	c.skipped = 0
	return nil
}

func (c *csvReader) Next() (RawRow, error) {
	for {
		record, err := c.r.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("csv: reading record: %w", err)
		}
		if len(record) != len(c.header) {
			c.skipped++
			continue
		}

		row := make(RawRow, len(c.header))
		for i, name := range c.header {
			row[name] = record[i]
		}
		return row, nil
	}
}

func (c *csvReader) Reset() {
	// rewind already succeeded once during construction; the content
	// has not changed since.
	_ = c.rewind()
}

func (c *csvReader) Skipped() int {
	return c.skipped
}
