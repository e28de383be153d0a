package statement

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// QIF field tags carried into the RawRow. The qif reader emits rows
// keyed by these canonical names rather than provider column headers.
const (
	QIFDate        = "date"
	QIFAmount      = "amount"
	QIFDescription = "description"
	QIFCategory    = "category"
	QIFMemo        = "memo"
)

// qifReader accumulates tagged lines into one record at a time. A line
// starting with '^' terminates the current record. Unrecognized tags
// are ignored. A trailing record with no terminator at end-of-input is
// dropped without error.
type qifReader struct {
	content []byte
	scanner *bufio.Scanner
	skipped int
}

func newQIFReader(content []byte) *qifReader {
	q := &qifReader{content: content}
	q.Reset()
	return q
}

func (q *qifReader) Next() (RawRow, error) {
	current := RawRow{}

	for q.scanner.Scan() {
		line := strings.TrimSpace(q.scanner.Text())
		if line == "" {
			continue
		}

		tag, value := line[:1], line[1:]
		switch tag {
		case "D":
			current[QIFDate] = value
		case "T", "$":
			current[QIFAmount] = value
		case "P":
			current[QIFDescription] = value
		case "L":
			current[QIFCategory] = value
		case "M":
			current[QIFMemo] = value
		case "^":
			if len(current) > 0 {
				return current, nil
			}
			// Stray terminator, keep scanning.
		case "!":
			// Header line such as !Type:Bank, no record content.
		}
	}

	// A partially accumulated record at end-of-input is discarded, not
	// reported: an unterminated trailing record is a truncation artifact
	// rather than an import failure.
	if len(current) > 0 {
		q.skipped++
	}
	return nil, io.EOF
}

func (q *qifReader) Reset() {
	q.scanner = bufio.NewScanner(bytes.NewReader(q.content))
	q.skipped = 0
}

func (q *qifReader) Skipped() int {
	return q.skipped
}
