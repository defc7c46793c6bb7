package audit

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	maxColWidth  = 60.0
)

// ExcelizeWriter builds one workbook in memory, one sheet per table.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
	widths       []float64
}

func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{
		file: excelize.NewFile(),
	}
}

// AddSheet starts a sheet. Names past Excel's 31 character limit are cut.
func (w *ExcelizeWriter) AddSheet(name string) error {
	if err := w.flushWidths(); err != nil {
		return err
	}

	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}

	// A new workbook starts with Sheet1; the first table takes it over.
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	w.currentSheet = name
	w.currentRow = 1
	w.widths = nil
	return nil
}

// WriteHeader writes bold column headers and freezes them.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	if len(columns) == 0 {
		return nil
	}

	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = col
	}
	if err := w.writeCells(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}
	startCell, _ := excelize.CoordinatesToCellName(1, w.currentRow)
	endCell, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow)
	if err := w.file.SetCellStyle(w.currentSheet, startCell, endCell, style); err != nil {
		return err
	}

	if err := w.file.SetPanes(w.currentSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      w.currentRow,
		TopLeftCell: fmt.Sprintf("A%d", w.currentRow+1),
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) WriteRow(row []any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	if err := w.writeCells(row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

func (w *ExcelizeWriter) writeCells(row []any) error {
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if b, ok := val.([]byte); ok {
			val = string(b)
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
		w.track(i, val)
	}
	return nil
}

func (w *ExcelizeWriter) track(col int, val any) {
	for len(w.widths) <= col {
		w.widths = append(w.widths, 8)
	}
	width := float64(utf8.RuneCountInString(fmt.Sprint(val))) + 2
	if width > maxColWidth {
		width = maxColWidth
	}
	if width > w.widths[col] {
		w.widths[col] = width
	}
}

func (w *ExcelizeWriter) flushWidths() error {
	if w.currentSheet == "" {
		return nil
	}
	for i, width := range w.widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(w.currentSheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}

// Save applies the column widths and writes the workbook to wr.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	if err := w.flushWidths(); err != nil {
		return err
	}
	return w.file.Write(wr)
}

func (w *ExcelizeWriter) SaveToFile(path string) error {
	if err := w.flushWidths(); err != nil {
		return err
	}
	return w.file.SaveAs(path)
}

func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}
