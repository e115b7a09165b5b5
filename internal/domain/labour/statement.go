package labour

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// WriteStatement renders one labourer's payment history as a PDF. Totals are
// the backend's; nothing is summed here.
func WriteStatement(w io.Writer, l Labourer, currency string, generatedAt time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payment Statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Labourer: %s", l.Name))
	pdf.Ln(7)
	if l.Phone != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Phone: %s", l.Phone))
		pdf.Ln(7)
	}
	if l.Address != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Address: %s", l.Address))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", generatedAt.Format("2006-01-02 15:04")))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(60, 8, "Date", "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, "Amount ("+currency+")", "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 11)
	if len(l.Payments) == 0 {
		pdf.CellFormat(120, 8, "No payments recorded", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	for _, p := range l.Payments {
		pdf.CellFormat(60, 8, p.Date, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 8, fmt.Sprintf("%.2f", p.Amount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Total paid: %.2f %s", l.TotalPaid, currency))

	return pdf.Output(w)
}
