package table

import (
	"encoding/json"
	"slices"
)

// Dataset is the ordered collection of records under review.
// A nil *Dataset means no data has been loaded; every method accepts it.
type Dataset struct {
	records []Record
}

// NewDataset creates a dataset holding a copy of records
func NewDataset(records []Record) *Dataset {
	return &Dataset{records: slices.Clone(records)}
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Record returns the record at row
func (d *Dataset) Record(row int) (Record, bool) {
	if d == nil || row < 0 || row >= len(d.records) {
		return Record{}, false
	}
	return d.records[row], true
}

// Records returns the rows in order
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return slices.Clone(d.records)
}

// Cell returns the value at (row, col), resolving col against the current headers
func (d *Dataset) Cell(row, col int) string {
	field, ok := d.Field(col)
	if !ok {
		return ""
	}
	rec, _ := d.Record(row)
	return rec.Value(field)
}

// Field resolves a column index to a field name using the current headers
func (d *Dataset) Field(col int) (string, bool) {
	headers := d.Headers()
	if col < 0 || col >= len(headers) {
		return "", false
	}
	return headers[col], true
}

// Rows renders every record against the current headers; absent fields become ""
func (d *Dataset) Rows() [][]string {
	headers := d.Headers()
	rows := make([][]string, 0, d.Len())
	for _, rec := range d.Records() {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = rec.Value(h)
		}
		rows = append(rows, row)
	}
	return rows
}

// Equal reports whether both datasets hold equal records in the same order
func (d *Dataset) Equal(other *Dataset) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	return slices.EqualFunc(d.records, other.records, Record.Equal)
}

// MarshalJSON writes the dataset as a JSON array of records
func (d *Dataset) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	records := d.records
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}
