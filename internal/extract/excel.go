package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel streams each non-empty sheet as a "## <sheet>" heading followed
// by its tab-separated rows. Blank rows and trailing empty cells are dropped so
// padded ranges do not produce whitespace-only chunks.
func extractExcel(content []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	var sections []string
	for _, sheet := range wb.GetSheetList() {
		lines, err := sheetLines(wb, sheet)
		if err != nil {
			return "", err
		}
		if len(lines) == 0 {
			continue
		}
		sections = append(sections, "## "+sheet+"\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n"), nil
}

func sheetLines(wb *excelize.File, sheet string) ([]string, error) {
	rows, err := wb.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		last := len(cells)
		for last > 0 && strings.TrimSpace(cells[last-1]) == "" {
			last--
		}
		if last == 0 {
			continue
		}
		lines = append(lines, strings.Join(cells[:last], "\t"))
	}
	return lines, rows.Error()
}
