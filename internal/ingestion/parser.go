package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned when a landed file is not a supported
// tabular format.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// parseTable reads a landed payload into rows of cell text. Columns are
// positional: the dataset schema defines their order, so no header mapping is
// attempted and the configured number of leading rows is simply skipped.
func parseTable(fileName string, payload []byte, delimiter rune, headerSkip int) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", ".dat":
		return parseDelimited(payload, delimiter, headerSkip)
	case ".xlsx":
		return parseExcel(payload, headerSkip)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseDelimited(payload []byte, delimiter rune, headerSkip int) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited file: %w", err)
	}

	return skipAndClean(records, headerSkip), nil
}

func parseExcel(payload []byte, headerSkip int) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return skipAndClean(rows, headerSkip), nil
}

func skipAndClean(records [][]string, headerSkip int) [][]string {
	if headerSkip > len(records) {
		headerSkip = len(records)
	}
	var rows [][]string
	for _, row := range records[headerSkip:] {
		if isEmptyRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
