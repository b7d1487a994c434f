package table

import "slices"

// AddRow returns a dataset with one more record whose fields are exactly the
// current headers, all empty. A nil dataset, or one without any headers, is
// returned unchanged.
func (d *Dataset) AddRow() *Dataset {
	if d == nil {
		return nil
	}
	headers := d.Headers()
	if len(headers) == 0 {
		return d
	}

	row := Record{values: make(map[string]string, len(headers))}
	for _, h := range headers {
		row.put(h, "")
	}

	records := make([]Record, 0, len(d.records)+1)
	records = append(records, d.records...)
	return &Dataset{records: append(records, row)}
}

// DeleteRow returns a dataset without the record at index.
// Out-of-range indexes leave the dataset unchanged.
func (d *Dataset) DeleteRow(index int) *Dataset {
	if d == nil || index < 0 || index >= len(d.records) {
		return d
	}
	records := slices.Clone(d.records)
	return &Dataset{records: slices.Delete(records, index, index+1)}
}

// SetCell returns a dataset where record row has field set to value
func (d *Dataset) SetCell(row int, field, value string) *Dataset {
	if d == nil || row < 0 || row >= len(d.records) {
		return d
	}
	records := slices.Clone(d.records)
	records[row] = records[row].With(field, value)
	return &Dataset{records: records}
}
