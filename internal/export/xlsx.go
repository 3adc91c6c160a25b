package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"docai/internal/domain"
)

const sheetName = "Sheet1"

// XLSXWriter streams records into a single-sheet workbook.
type XLSXWriter struct {
	out    io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
}

// NewXLSXWriter creates an XLSXWriter. The workbook is written to w on Close.
func NewXLSXWriter(w io.Writer) (*XLSXWriter, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating stream writer: %w", err)
	}
	return &XLSXWriter{out: w, file: f, stream: sw, row: 1}, nil
}

// WriteHeader writes the bold header row and freezes it.
func (w *XLSXWriter) WriteHeader() error {
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := w.stream.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	cells := make([]interface{}, len(columns))
	for i, c := range columns {
		cells[i] = excelize.Cell{StyleID: style, Value: c}
	}
	return w.writeRow(cells)
}

// WriteRecords appends one row per record.
func (w *XLSXWriter) WriteRecords(records []domain.ShippingRecord) error {
	for i := range records {
		row := recordToRow(&records[i])
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		// Numeric columns are written as numbers.
		cells[11] = len(records[i].Packages)
		cells[14] = records[i].MetaInfo.TotalTokens
		cells[15] = records[i].MetaInfo.TotalCost
		if err := w.writeRow(cells); err != nil {
			return err
		}
	}
	return nil
}

func (w *XLSXWriter) writeRow(cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.stream.SetRow(cell, cells); err != nil {
		return err
	}
	w.row++
	return nil
}

// Close flushes the sheet and writes the workbook.
func (w *XLSXWriter) Close() error {
	defer w.file.Close()
	if err := w.stream.Flush(); err != nil {
		return fmt.Errorf("flushing sheet: %w", err)
	}
	if err := w.file.Write(w.out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
