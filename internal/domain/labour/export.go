package labour

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	labourersSheet = "Labourers"
	paymentsSheet  = "Payments"
)

// WriteWorkbook exports a snapshot as an XLSX workbook with one sheet of
// labourers and one of payments.
func WriteWorkbook(w io.Writer, snap Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", labourersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, labourersSheet, 1, []any{"ID", "Name", "Phone", "Address", "Total Paid", "Payments"}); err != nil {
		return err
	}
	if err := writeRow(f, paymentsSheet, 1, []any{"Labourer ID", "Labourer", "Payment ID", "Date", "Amount"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(labourersSheet, "A1", "F1", bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(paymentsSheet, "A1", "E1", bold); err != nil {
		return err
	}

	paymentRow := 2
	for i, l := range snap.Labourers {
		row := []any{l.ID, l.Name, l.Phone, l.Address, l.TotalPaid, len(l.Payments)}
		if err := writeRow(f, labourersSheet, i+2, row); err != nil {
			return err
		}
		for _, p := range l.Payments {
			if err := writeRow(f, paymentsSheet, paymentRow, []any{l.ID, l.Name, p.ID, p.Date, p.Amount}); err != nil {
				return err
			}
			paymentRow++
		}
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
