// Package statement parses bank statement export files (CSV, Excel
// workbooks and QIF) into normalized transaction candidates. It knows
// nothing about persistence; the importer package drives it.
package statement

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported statement file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLS  Format = "xls"
	FormatXLSX Format = "xlsx"
	FormatQIF  Format = "qif"
)

// MaxFileSize is the upload size ceiling (10 MiB).
const MaxFileSize = 10 * 1024 * 1024

var (
	// ErrUnsupportedFormat is returned for file extensions outside the allowlist.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrFileTooLarge is returned when an upload exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
)

// DetectFormat maps a file name to its Format based on the extension.
func DetectFormat(fileName string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch ext {
	case "csv":
		return FormatCSV, nil
	case "xls":
		return FormatXLS, nil
	case "xlsx":
		return FormatXLSX, nil
	case "qif":
		return FormatQIF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ValidateUpload checks the extension allowlist and the size ceiling
// before any bytes are parsed.
func ValidateUpload(fileName string, size int64) (Format, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return "", err
	}
	if size > MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, MaxFileSize)
	}
	return format, nil
}
