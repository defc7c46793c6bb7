package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	// GetTableNames returns list of table names to export.
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows for a table as maps, plus the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	// AddSheet adds a new sheet with the given name.
	AddSheet(name string) error

	// WriteHeader writes column headers to current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to current sheet.
	WriteRow(row []any) error

	// Save writes the Excel file to the writer.
	Save(w io.Writer) error

	// SaveToFile writes the Excel file to disk.
	SaveToFile(path string) error

	Close() error
}

// DocumentSender delivers a saved report file to staff.
type DocumentSender interface {
	SendDocument(ctx context.Context, path, caption string) error
}

// DataCleaner strips guest personal data from finished bookings past the
// retention window. Bookings, history and payments are never deleted.
type DataCleaner interface {
	AnonymizeOldBookings(ctx context.Context, cutoff time.Time) (int64, error)
}

// Logger for audit operations.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}

// GenerateFilename creates a filename like "bookings_January_2026.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("bookings_%s_%d.xlsx", t.Month(), t.Year())
}

// GenerateFilenameForPreviousMonth names the report covering the month before now.
func GenerateFilenameForPreviousMonth(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return GenerateFilename(first.AddDate(0, -1, 0))
}
