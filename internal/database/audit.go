package database

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// AuditTableNames are the tables included in the monthly export, in sheet order.
var AuditTableNames = []string{
	"rooms",
	"bookings",
	"booking_history",
	"booking_payments",
}

// GetTableNames returns the tables to export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return slices.Clone(AuditTableNames), nil
}

// GetTableData returns every row of an exportable table keyed by column name.
func (db *DB) GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error) {
	// Table names cannot be bound as parameters, so only the allow-list is accepted.
	if !slices.Contains(AuditTableNames, tableName) {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY id", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = exportValue(values[i])
		}
		result = append(result, row)
	}

	return result, columns, rows.Err()
}

// exportValue turns driver values into something a spreadsheet cell can hold.
func exportValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return val
	}
}
