package reconcile

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cashdesk-cloud/internal/money"
)

// RawRow is one externally-sourced line item as delivered by the row source:
// a flat mapping of source column name to raw value. Rows are consumed
// entirely by aggregation and never persisted on their own.
type RawRow map[string]string

// Canonical field names a source column can map to.
const (
	FieldProtocol     = "protocol"
	FieldDescription  = "description"
	FieldPayerName    = "payer_name"
	FieldOriginStatus = "origin_status"
	FieldQuantity     = "quantity"
	FieldActDate      = "act_date"
	FieldAmount       = "amount"
)

// FieldProfile is the explicit, auditable configuration consulted during
// aggregation: which source columns map to which canonical fields, which
// canonical fields are summed across a group and which take the value from
// the first row encountered. Field sets are fixed per routine, never
// discovered at runtime.
type FieldProfile struct {
	Routine   string
	Aliases   map[string]string // upper-cased source column -> canonical field
	Summable  []string          // monetary fields, FieldAmount included
	FirstWins []string          // descriptive fields, first row wins
}

// DefaultTaxFields are the tax/fee columns recognized out of the box.
var DefaultTaxFields = []string{
	"iss",
	"state_fund",
	"judiciary_fee",
	"emolument",
	"extra_revenue_1",
	"extra_revenue_2",
}

// DefaultFieldProfile builds the built-in profile: principal amount plus the
// default tax fields summable, payer/status/quantity/date first-wins, and a
// tolerant alias table covering the column spellings seen across source
// systems (including TAXA1..TAXA6 style numbered tax columns).
func DefaultFieldProfile(routine string) FieldProfile {
	aliases := map[string]string{
		"PROTOCOL":        FieldProtocol,
		"PROTOCOLO":       FieldProtocol,
		"NR_PROTOCOLO":    FieldProtocol,
		"DESCRIPTION":     FieldDescription,
		"DESCRICAO":       FieldDescription,
		"PAYER_NAME":      FieldPayerName,
		"CLIENTE_NOME":    FieldPayerName,
		"APRESENTANTE":    FieldPayerName,
		"STATUS":          FieldOriginStatus,
		"ORIGIN_STATUS":   FieldOriginStatus,
		"QTD":             FieldQuantity,
		"QUANTITY":        FieldQuantity,
		"ACT_DATE":        FieldActDate,
		"DATA_ATO":        FieldActDate,
		"AMOUNT":          FieldAmount,
		"VALOR":           FieldAmount,
		"VALOR_PRINCIPAL": FieldAmount,
		"ISS":             "iss",
		"STATE_FUND":      "state_fund",
		"ESTADO":          "state_fund",
		"JUDICIARY_FEE":   "judiciary_fee",
		"TAXA_JUDICIARIA": "judiciary_fee",
		"EMOLUMENT":       "emolument",
		"EMOLUMENTO":      "emolument",
		"EXTRA_REVENUE_1": "extra_revenue_1",
		"EXTRA_REVENUE_2": "extra_revenue_2",
	}
	numbered := []string{"iss", "state_fund", "judiciary_fee", "emolument", "extra_revenue_1", "extra_revenue_2"}
	for i, field := range numbered {
		aliases["TAXA"+strconv.Itoa(i+1)] = field
	}

	summable := append([]string{FieldAmount}, DefaultTaxFields...)
	return FieldProfile{
		Routine:   routine,
		Aliases:   aliases,
		Summable:  summable,
		FirstWins: []string{FieldPayerName, FieldOriginStatus, FieldQuantity, FieldActDate},
	}
}

// TaxFields returns the summable fields minus the principal amount.
func (p FieldProfile) TaxFields() []string {
	fields := make([]string, 0, len(p.Summable))
	for _, f := range p.Summable {
		if f != FieldAmount {
			fields = append(fields, f)
		}
	}
	return fields
}

func (p FieldProfile) isSummable(field string) bool {
	for _, f := range p.Summable {
		if f == field {
			return true
		}
	}
	return false
}

// MapRow resolves a raw row to canonical fields. When several source columns
// map to the same summable field (e.g. a principal column plus a surcharge
// column both aliased to amount), their values are accumulated rather than
// overwritten. Unmapped columns are dropped.
func (p FieldProfile) MapRow(row RawRow) map[string]string {
	mapped := make(map[string]string)
	for column, value := range row {
		field, ok := p.Aliases[strings.ToUpper(strings.TrimSpace(column))]
		if !ok {
			continue
		}
		if p.isSummable(field) {
			if existing, dup := mapped[field]; dup {
				sum := money.ParseLenient(existing).Add(money.ParseLenient(value))
				mapped[field] = sum.String()
				continue
			}
		}
		mapped[field] = value
	}
	return mapped
}

// MappedAmount parses a summable field from a mapped row, absent values
// counting as zero.
func MappedAmount(mapped map[string]string, field string) decimal.Decimal {
	return money.ParseLenient(mapped[field])
}
