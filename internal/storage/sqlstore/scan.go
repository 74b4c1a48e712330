package sqlstore

import (
	"database/sql"

	"github.com/restforge/restforge/internal/storage"
)

// scanRowWithColumns scans a single row with known column order
func scanRowWithColumns(row *sql.Row, cols []string) (storage.Record, error) {
	values := make([]interface{}, len(cols))
	valuePtrs := make([]interface{}, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := row.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	record := make(storage.Record, len(cols))
	for i, col := range cols {
		record[col] = normalizeScanned(values[i])
	}
	return record, nil
}

// scanRows scans all rows into records using the result set's column order
func scanRows(rows *sql.Rows) ([]storage.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []storage.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(storage.Record, len(cols))
		for i, col := range cols {
			record[col] = normalizeScanned(values[i])
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// normalizeScanned converts driver byte slices into strings so records
// compare and serialize predictably across drivers
func normalizeScanned(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
