package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cashdesk-cloud/internal/observability/metrics"
	reconcile "cashdesk-cloud/internal/reconcile/domain"
)

// IDGenerator mints ledger ids.
type IDGenerator func() string

// ImportService turns raw imported rows into protocol ledgers: consolidate,
// skip protocols that already have an open ledger, persist the rest.
type ImportService struct {
	repo     reconcile.Repository
	profiles *ProfileSet
	logger   *log.Logger
	now      func() time.Time
	newID    IDGenerator
}

// NewImportService constructs the service.
func NewImportService(repo reconcile.Repository, profiles *ProfileSet, logger *log.Logger, now func() time.Time, newID IDGenerator) *ImportService {
	if now == nil {
		now = time.Now
	}
	return &ImportService{repo: repo, profiles: profiles, logger: logger, now: now, newID: newID}
}

// ImportInput is one reconciliation batch.
type ImportInput struct {
	Routine   string
	SessionID string
	DueDate   *time.Time
	Rows      []reconcile.RawRow
}

// ImportResult reports what the batch produced.
type ImportResult struct {
	Created []LedgerView `json:"created"`
	Skipped []string     `json:"skipped_protocols,omitempty"`
}

// Run consolidates and persists one batch. The whole batch either persists
// or fails; skipped protocols (already open for this tenant and routine) do
// not fail the run.
func (s *ImportService) Run(ctx context.Context, tenantID string, in ImportInput) (ImportResult, error) {
	started := s.now()
	result, err := s.run(ctx, tenantID, in)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.ObserveImportRun(outcome, s.now().Sub(started))
	return result, err
}

func (s *ImportService) run(ctx context.Context, tenantID string, in ImportInput) (ImportResult, error) {
	var result ImportResult
	if tenantID == "" {
		return result, reconcile.ErrEmptyTenantID
	}
	if in.Routine == "" {
		return result, errors.New("import: empty routine")
	}

	profile := s.profiles.For(in.Routine)
	drafts, err := reconcile.Consolidate(profile, in.Rows)
	if err != nil {
		return result, err
	}
	if len(drafts) == 0 {
		return result, nil
	}

	keys := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		keys = append(keys, draft.ProtocolKey)
	}
	open, err := s.repo.OpenProtocols(ctx, tenantID, in.Routine, keys)
	if err != nil {
		return result, fmt.Errorf("import: check open protocols: %w", err)
	}

	now := s.now().UTC()
	var ledgers []*reconcile.Ledger
	for _, draft := range drafts {
		if open[draft.ProtocolKey] {
			result.Skipped = append(result.Skipped, draft.ProtocolKey)
			continue
		}
		led, err := reconcile.NewLedger(
			reconcile.LedgerID(s.newID()),
			tenantID,
			reconcile.SessionID(in.SessionID),
			in.DueDate,
			draft,
			now,
		)
		if err != nil {
			return ImportResult{}, err
		}
		ledgers = append(ledgers, led)
	}

	if len(ledgers) > 0 {
		if err := s.repo.CreateBatch(ctx, ledgers); err != nil {
			return ImportResult{}, fmt.Errorf("import: persist batch: %w", err)
		}
	}
	for _, led := range ledgers {
		result.Created = append(result.Created, BuildLedgerView(led, now, false))
	}

	metrics.AddImportRows(metrics.RowOutcomeCreated, len(result.Created))
	metrics.AddImportRows(metrics.RowOutcomeSkipped, len(result.Skipped))
	if s.logger != nil {
		s.logger.Printf("import run tenant=%s routine=%s created=%d skipped=%d",
			tenantID, in.Routine, len(result.Created), len(result.Skipped))
	}
	return result, nil
}
