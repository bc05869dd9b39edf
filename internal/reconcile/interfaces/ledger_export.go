package interfaces

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"cashdesk-cloud/internal/money"
	"cashdesk-cloud/internal/reconcile/application"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// BuildReceiptPDF renders a payment receipt for one ledger: the protocol
// header, the settlement history and the line-item breakdown.
func BuildReceiptPDF(led *reconcile.Ledger) ([]byte, error) {
	if led == nil {
		return nil, reconcile.ErrNilLedger
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Payment Receipt")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Protocol: %s", led.ProtocolKey()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Routine: %s", led.Routine()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Description: %s", led.Description()))
	pdf.Ln(5)
	if led.PayerName() != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Payer: %s", led.PayerName()))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", led.EffectiveStatus(time.Now().UTC())))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Amount Due: %s", money.Format(led.AmountDue())))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Amount Received: %s", money.Format(led.AmountReceived())))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance Remaining: %s", money.Format(led.BalanceRemaining())))
	pdf.Ln(8)

	// Settlement history table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Method", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Recorded At", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Session", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, ev := range led.Events() {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", ev.Seq), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, money.Format(ev.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, ev.Method, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, ev.RecordedAt.Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, string(ev.SessionID), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	if items := led.Items(); len(items) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
		pdf.CellFormat(90, 6, "Description", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Act Date", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Amount", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, item := range items {
			pdf.CellFormat(15, 6, fmt.Sprintf("%d", item.Seq), "1", 0, "C", false, 0, "")
			pdf.CellFormat(90, 6, item.Description, "1", 0, "L", false, 0, "")
			pdf.CellFormat(40, 6, item.ActDate, "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, money.Format(item.Amount), "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSessionBookXLSX renders the ledger book for a session: a summary
// sheet plus one row per ledger collected under the session.
func BuildSessionBookXLSX(sessionID string, ledgers []*reconcile.Ledger, collected decimal.Decimal, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	ledgersSheet := "ledgers"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(ledgersSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Session Ledger Book")
	_ = f.SetCellValue(summarySheet, "A3", "Session")
	_ = f.SetCellValue(summarySheet, "B3", sessionID)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", now.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Ledgers")
	_ = f.SetCellValue(summarySheet, "B5", len(ledgers))
	_ = f.SetCellValue(summarySheet, "A6", "Collected")
	_ = f.SetCellValue(summarySheet, "B6", money.Format(collected))

	_ = f.SetCellValue(ledgersSheet, "A1", "Protocol")
	_ = f.SetCellValue(ledgersSheet, "B1", "Routine")
	_ = f.SetCellValue(ledgersSheet, "C1", "Description")
	_ = f.SetCellValue(ledgersSheet, "D1", "Amount Due")
	_ = f.SetCellValue(ledgersSheet, "E1", "Amount Received")
	_ = f.SetCellValue(ledgersSheet, "F1", "Balance")
	_ = f.SetCellValue(ledgersSheet, "G1", "Status")
	for i, led := range ledgers {
		row := i + 2
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("A%d", row), led.ProtocolKey())
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("B%d", row), led.Routine())
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("C%d", row), led.Description())
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("D%d", row), money.Format(led.AmountDue()))
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("E%d", row), money.Format(led.AmountReceived()))
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("F%d", row), money.Format(led.BalanceRemaining()))
		_ = f.SetCellValue(ledgersSheet, fmt.Sprintf("G%d", row), string(led.EffectiveStatus(now)))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SessionBookExporter builds session ledger books from the query side. It
// satisfies the session handler's exporter dependency.
type SessionBookExporter struct {
	queries *application.QueryService
}

// NewSessionBookExporter constructs an exporter.
func NewSessionBookExporter(queries *application.QueryService) (*SessionBookExporter, error) {
	if queries == nil {
		return nil, errors.New("book exporter: nil query service")
	}
	return &SessionBookExporter{queries: queries}, nil
}

// BuildSessionBook renders the XLSX ledger book for one session.
func (e *SessionBookExporter) BuildSessionBook(ctx context.Context, tenantID, sessionID string) ([]byte, error) {
	ledgers, err := e.queries.ListBySession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	collected, err := e.queries.CollectedInSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return BuildSessionBookXLSX(sessionID, ledgers, collected, time.Now().UTC())
}
