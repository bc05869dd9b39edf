package reconcile

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Draft is the consolidated result of aggregating one protocol group: every
// value a ledger needs at creation time. Drafts carry no identity, tenant or
// session; the import service supplies those.
type Draft struct {
	Routine      string
	ProtocolKey  string
	Description  string
	PayerName    string
	OriginStatus string
	Quantity     int
	AmountDue    decimal.Decimal
	TaxBreakdown map[string]decimal.Decimal
	Items        []LineItem
}

// Consolidate groups raw rows by their normalized protocol key and reduces
// each group to one draft: the principal amounts are summed exactly into the
// amount due, tax fields are summed separately into the tax breakdown, the
// profile's first-wins fields take the value of the group's first row in
// source order (even when blank), and description fragments are deduplicated
// and joined with "; " under a "{routine} - " prefix. Groups come back in
// first-seen order.
//
// A money-bearing row without a protocol key aborts the whole batch with a
// MissingKeyError; rows carrying neither key nor money are dropped. An empty
// input consolidates to zero drafts.
func Consolidate(profile FieldProfile, rows []RawRow) ([]Draft, error) {
	order := make([]string, 0, len(rows))
	groups := make(map[string][]map[string]string, len(rows))

	for i, row := range rows {
		mapped := profile.MapRow(row)
		key := strings.TrimSpace(mapped[FieldProtocol])
		if key == "" {
			if rowCarriesMoney(profile, mapped) {
				return nil, &MissingKeyError{RowIndex: i}
			}
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], mapped)
	}

	drafts := make([]Draft, 0, len(order))
	for _, key := range order {
		draft, err := reduceGroup(profile, key, groups[key])
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func reduceGroup(profile FieldProfile, key string, mappedRows []map[string]string) (Draft, error) {
	draft := Draft{
		Routine:      profile.Routine,
		ProtocolKey:  key,
		AmountDue:    decimal.Zero,
		TaxBreakdown: make(map[string]decimal.Decimal, len(profile.TaxFields())),
	}
	for _, field := range profile.TaxFields() {
		draft.TaxBreakdown[field] = decimal.Zero
	}

	// First-wins fields are taken from the group's first row as configured,
	// blank or not. Later rows never overwrite them.
	first := mappedRows[0]
	for _, field := range profile.FirstWins {
		switch field {
		case FieldPayerName:
			draft.PayerName = strings.TrimSpace(first[FieldPayerName])
		case FieldOriginStatus:
			draft.OriginStatus = strings.TrimSpace(first[FieldOriginStatus])
		case FieldQuantity:
			draft.Quantity = rowQuantity(first)
		}
	}

	var fragments []string
	seenFragment := make(map[string]bool)

	for _, mapped := range mappedRows {
		// Taxes accumulate into the breakdown only; the amount due is the
		// sum of principal amounts.
		amount := MappedAmount(mapped, FieldAmount)
		taxes := make(map[string]decimal.Decimal, len(profile.TaxFields()))
		for _, field := range profile.TaxFields() {
			v := MappedAmount(mapped, field)
			taxes[field] = v
			draft.TaxBreakdown[field] = draft.TaxBreakdown[field].Add(v)
		}
		draft.AmountDue = draft.AmountDue.Add(amount)

		if frag := strings.TrimSpace(mapped[FieldDescription]); frag != "" && !seenFragment[frag] {
			seenFragment[frag] = true
			fragments = append(fragments, frag)
		}

		draft.Items = append(draft.Items, LineItem{
			Seq:         len(draft.Items) + 1,
			Description: strings.TrimSpace(mapped[FieldDescription]),
			PayerName:   strings.TrimSpace(mapped[FieldPayerName]),
			ActDate:     strings.TrimSpace(mapped[FieldActDate]),
			Amount:      amount,
			Taxes:       taxes,
		})
	}

	if draft.AmountDue.IsNegative() {
		return Draft{}, ErrNegativeAmountDue
	}
	draft.Description = profile.Routine
	if len(fragments) > 0 {
		draft.Description += " - " + strings.Join(fragments, "; ")
	}
	return draft, nil
}

// rowCarriesMoney reports whether any summable field of the mapped row is
// non-zero.
func rowCarriesMoney(profile FieldProfile, mapped map[string]string) bool {
	for _, field := range profile.Summable {
		if !MappedAmount(mapped, field).IsZero() {
			return true
		}
	}
	return false
}

// rowQuantity parses the act quantity of one row, defaulting to 1 so plain
// rows still count as one act.
func rowQuantity(mapped map[string]string) int {
	raw := strings.TrimSpace(mapped[FieldQuantity])
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 1
	}
	return n
}
