package table

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	// WorkbookContentType is served for the exported spreadsheet
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	workbookSheet = "Sheet1"
)

// ExportWorkbook renders d as a spreadsheet with the same grouping as ExportDocument.
// A grouped primary cell is merged down over the rows it spans.
func ExportWorkbook(d *Dataset, now time.Time) (Document, error) {
	if d == nil {
		return Document{}, ErrNoData
	}
	layout := Layout(d)

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return Document{}, fmt.Errorf("creating header style: %w", err)
	}

	for i, label := range layout.Labels {
		name, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return Document{}, err
		}
		if err := f.SetCellValue(workbookSheet, name, label); err != nil {
			return Document{}, fmt.Errorf("writing header %s: %w", name, err)
		}
		if err := f.SetCellStyle(workbookSheet, name, name, bold); err != nil {
			return Document{}, fmt.Errorf("styling header %s: %w", name, err)
		}
	}

	for r, row := range layout.Rows {
		rowNum := r + 2
		col := 1
		if layout.Primary {
			if row.Span > 0 {
				if err := writeCell(f, col, rowNum, row.Primary); err != nil {
					return Document{}, err
				}
				if row.Span > 1 {
					top, _ := excelize.CoordinatesToCellName(col, rowNum)
					bottom, _ := excelize.CoordinatesToCellName(col, rowNum+row.Span-1)
					if err := f.MergeCell(workbookSheet, top, bottom); err != nil {
						return Document{}, fmt.Errorf("merging %s:%s: %w", top, bottom, err)
					}
				}
			}
			col++
		}
		for _, v := range row.Values {
			if err := writeCell(f, col, rowNum, v); err != nil {
				return Document{}, err
			}
			col++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Document{}, fmt.Errorf("writing workbook: %w", err)
	}
	return Document{
		Filename:    fmt.Sprintf("table-%d.xlsx", now.UnixMilli()),
		ContentType: WorkbookContentType,
		Body:        buf.Bytes(),
	}, nil
}

func writeCell(f *excelize.File, col, row int, value string) error {
	if value == "" {
		return nil
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellStr(workbookSheet, name, value); err != nil {
		return fmt.Errorf("writing cell %s: %w", name, err)
	}
	return nil
}
