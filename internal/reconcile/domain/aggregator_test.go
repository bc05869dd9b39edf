package reconcile

import (
	"errors"
	"testing"
)

func TestConsolidateGroupsByProtocol(t *testing.T) {
	profile := DefaultFieldProfile("civil-registry")
	rows := []RawRow{
		{"PROTOCOLO": "2026-0001", "DESCRICAO": "birth certificate", "VALOR": "100,00", "ISS": "5,00", "CLIENTE_NOME": "Ana"},
		{"PROTOCOLO": "2026-0001", "DESCRICAO": "certified copy", "VALOR": "20,00", "ISS": "1,00"},
		{"PROTOCOLO": "2026-0002", "DESCRICAO": "marriage certificate", "VALOR": "55,50"},
	}

	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("got %d drafts, want 2", len(drafts))
	}

	first := drafts[0]
	if first.ProtocolKey != "2026-0001" {
		t.Fatalf("first draft key = %q, want first-seen order", first.ProtocolKey)
	}
	if got := first.AmountDue.StringFixed(2); got != "120.00" {
		t.Fatalf("amount due = %s, want principal only", got)
	}
	if got := first.TaxBreakdown["iss"].StringFixed(2); got != "6.00" {
		t.Fatalf("iss total = %s, want 6.00", got)
	}
	if first.Description != "civil-registry - birth certificate; certified copy" {
		t.Fatalf("description = %q", first.Description)
	}
	if first.PayerName != "Ana" {
		t.Fatalf("payer = %q, want first row to win", first.PayerName)
	}
	if first.Quantity != 1 {
		t.Fatalf("quantity = %d, want first row's count", first.Quantity)
	}
	if len(first.Items) != 2 {
		t.Fatalf("line items = %d, want 2", len(first.Items))
	}

	second := drafts[1]
	if got := second.AmountDue.StringFixed(2); got != "55.50" {
		t.Fatalf("single-row draft amount = %s, want 55.50", got)
	}
	if second.Description != "civil-registry - marriage certificate" {
		t.Fatalf("single-row description = %q", second.Description)
	}
}

func TestConsolidateTaxesStayOutOfAmountDue(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	rows := []RawRow{
		{"PROTOCOLO": "12345", "DESCRICAO": "deed", "VALOR": "400,00", "ISS": "10,00"},
		{"PROTOCOLO": "12345", "DESCRICAO": "stamp", "VALOR": "300,00", "ISS": "10,00"},
		{"PROTOCOLO": "12345", "DESCRICAO": "filing", "VALOR": "300,00", "ISS": "10,00"},
	}
	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}
	draft := drafts[0]
	if got := draft.AmountDue.StringFixed(2); got != "1000.00" {
		t.Fatalf("amount due = %s, want 1000.00 (principal only)", got)
	}
	if got := draft.TaxBreakdown["iss"].StringFixed(2); got != "30.00" {
		t.Fatalf("iss total = %s, want 30.00", got)
	}
	if draft.Description != "notary - deed; stamp; filing" {
		t.Fatalf("description = %q, want each fragment once", draft.Description)
	}
}

func TestConsolidateFirstRowWinsEvenWhenBlank(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	rows := []RawRow{
		{"PROTOCOLO": "P1", "VALOR": "10,00", "QTD": "2"},
		{"PROTOCOLO": "P1", "VALOR": "5,00", "CLIENTE_NOME": "Bob", "STATUS": "X", "QTD": "5"},
	}
	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	draft := drafts[0]
	if draft.PayerName != "" {
		t.Fatalf("payer = %q, want the first row's blank value kept", draft.PayerName)
	}
	if draft.OriginStatus != "" {
		t.Fatalf("origin status = %q, want the first row's blank value kept", draft.OriginStatus)
	}
	if draft.Quantity != 2 {
		t.Fatalf("quantity = %d, want the first row's count", draft.Quantity)
	}
}

func TestConsolidateHonorsFirstWinsConfiguration(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	profile.FirstWins = []string{FieldPayerName}
	rows := []RawRow{
		{"PROTOCOLO": "P1", "VALOR": "10,00", "CLIENTE_NOME": "Ana", "STATUS": "OK"},
	}
	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if drafts[0].PayerName != "Ana" {
		t.Fatalf("payer = %q, want configured field carried", drafts[0].PayerName)
	}
	if drafts[0].OriginStatus != "" {
		t.Fatalf("origin status = %q, want unconfigured field left empty", drafts[0].OriginStatus)
	}
}

func TestConsolidateDescriptionWithoutFragments(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	rows := []RawRow{
		{"PROTOCOLO": "P1", "VALOR": "10,00"},
	}
	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if drafts[0].Description != "notary" {
		t.Fatalf("description = %q, want bare routine", drafts[0].Description)
	}
}

func TestConsolidateDeduplicatesDescriptions(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	rows := []RawRow{
		{"PROTOCOLO": "P1", "DESCRICAO": "power of attorney", "VALOR": "10,00"},
		{"PROTOCOLO": "P1", "DESCRICAO": "power of attorney", "VALOR": "10,00"},
		{"PROTOCOLO": "P1", "DESCRICAO": "recognition", "VALOR": "5,00"},
	}
	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if drafts[0].Description != "notary - power of attorney; recognition" {
		t.Fatalf("description = %q, want deduplicated fragments", drafts[0].Description)
	}
	if got := drafts[0].AmountDue.StringFixed(2); got != "25.00" {
		t.Fatalf("amount due = %s, want identical rows still summed", got)
	}
}

func TestConsolidateMissingKeyAbortsBatch(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	rows := []RawRow{
		{"PROTOCOLO": "P1", "VALOR": "10,00"},
		{"DESCRICAO": "stray", "VALOR": "3,00"},
	}
	_, err := Consolidate(profile, rows)
	var missing *MissingKeyError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingKeyError", err)
	}
	if missing.RowIndex != 1 {
		t.Fatalf("row index = %d, want 1", missing.RowIndex)
	}
}

func TestConsolidateDropsEmptyRowsWithoutMoney(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	rows := []RawRow{
		{"DESCRICAO": "header noise"},
		{"PROTOCOLO": "P1", "VALOR": "10,00"},
	}
	drafts, err := Consolidate(profile, rows)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want the keyless money-free row dropped", len(drafts))
	}
}

func TestConsolidateEmptyInput(t *testing.T) {
	drafts, err := Consolidate(DefaultFieldProfile("notary"), nil)
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(drafts) != 0 {
		t.Fatalf("got %d drafts, want 0", len(drafts))
	}
}

func TestMapRowAccumulatesDuplicateSummableColumns(t *testing.T) {
	profile := DefaultFieldProfile("notary")
	// VALOR and VALOR_PRINCIPAL both alias to the principal amount.
	mapped := profile.MapRow(RawRow{
		"VALOR":           "10,00",
		"VALOR_PRINCIPAL": "2,50",
		"PROTOCOLO":       "P1",
	})
	if got := MappedAmount(mapped, FieldAmount).StringFixed(2); got != "12.50" {
		t.Fatalf("accumulated amount = %s, want 12.50", got)
	}
}
