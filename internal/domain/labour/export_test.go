package labour

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func sampleSnapshot() Snapshot {
	return Snapshot{Labourers: []Labourer{
		{ID: "1", Name: "Raju", Phone: "9000000001", TotalPaid: 700, Payments: []Payment{
			{ID: "p1", Amount: 300, Date: "2026-03-01"},
			{ID: "p2", Amount: 400, Date: "2026-03-02"},
		}},
		{ID: "2", Name: "Meena", TotalPaid: 0},
	}}
}

func TestWriteStatement(t *testing.T) {
	var buf bytes.Buffer
	l := sampleSnapshot().Labourers[0]
	if err := WriteStatement(&buf, l, "INR", time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("statement: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Fatal("expected pdf output")
	}
}

func TestWriteStatementWithoutPayments(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatement(&buf, sampleSnapshot().Labourers[1], "INR", time.Now()); err != nil {
		t.Fatalf("statement: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected pdf output")
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("workbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(labourersSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 || rows[1][1] != "Raju" || rows[1][4] != "700" {
		t.Fatalf("unexpected labourer rows %v", rows)
	}

	payments, err := f.GetRows(paymentsSheet)
	if err != nil {
		t.Fatalf("payment rows: %v", err)
	}
	if len(payments) != 3 || payments[2][2] != "p2" {
		t.Fatalf("unexpected payment rows %v", payments)
	}
}
