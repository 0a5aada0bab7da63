package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/schoolhub/bulkops-backend/internal/model"
	"github.com/schoolhub/bulkops-backend/internal/repository"
	"github.com/schoolhub/bulkops-backend/internal/tracker"
)

// TenantStore is the persistence surface the tenant bulk writer needs.
// *repository.TenantRepository implements it.
type TenantStore interface {
	ExistingCodes(ctx context.Context, codes []string) (map[string]bool, error)
	ActiveCodes(ctx context.Context, codes []string) (map[string]bool, error)
	InsertBatch(ctx context.Context, tenants []*model.Tenant) error
	InsertOne(ctx context.Context, t *model.Tenant) error
	UpdateBatch(ctx context.Context, rows []model.TenantRow) ([]string, error)
	UpdateOne(ctx context.Context, row *model.TenantRow) (bool, error)
}

// ProgressFunc receives cumulative progress after every chunk.
type ProgressFunc func(p tracker.Progress)

// TenantBulkService writes validated tenant rows in fixed-size chunks.
type TenantBulkService struct {
	store     TenantStore
	batchSize int
	log       zerolog.Logger
}

// NewTenantBulkService creates a new TenantBulkService.
func NewTenantBulkService(store TenantStore, batchSize int, log zerolog.Logger) *TenantBulkService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &TenantBulkService{
		store:     store,
		batchSize: batchSize,
		log:       log.With().Str("component", "tenant_bulk_service").Logger(),
	}
}

// chunkRun accumulates the outcome of a bulk run.
type chunkRun struct {
	res       model.BulkResult
	processed int
}

func (r *chunkRun) fail(row *model.TenantRow, msg string) {
	r.res.Failed++
	r.res.Errors = append(r.res.Errors, model.RowError{
		RowNumber: row.RowNumber,
		Key:       row.SchoolCode,
		Error:     msg,
	})
}

func (r *chunkRun) failChunk(chunk []model.TenantRow, n int, err error) {
	start, end := chunk[0].RowNumber, chunk[len(chunk)-1].RowNumber
	r.res.Failed += n
	r.res.Errors = append(r.res.Errors, model.RowError{
		Error:      "Batch processing failed: " + err.Error(),
		BatchStart: &start,
		BatchEnd:   &end,
	})
}

func (s *TenantBulkService) chunks(rows []model.TenantRow) [][]model.TenantRow {
	var out [][]model.TenantRow
	for i := 0; i < len(rows); i += s.batchSize {
		end := i + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

// ─── Create ─────────────────────────────────────────────────────────

// Create inserts rows whose school_code is not yet taken. Rows are never
// upserted: an existing code is reported and left untouched.
func (s *TenantBulkService) Create(ctx context.Context, rows []model.TenantRow, progress ProgressFunc) (*model.BulkResult, error) {
	run := &chunkRun{res: model.BulkResult{TotalRows: len(rows)}}
	seen := make(map[string]bool, len(rows))

	for _, chunk := range s.chunks(rows) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.createChunk(ctx, run, chunk, seen)
		run.processed += len(chunk)
		report(progress, run)
	}
	return &run.res, nil
}

func (s *TenantBulkService) createChunk(ctx context.Context, run *chunkRun, chunk []model.TenantRow, seen map[string]bool) {
	codes := make([]string, len(chunk))
	for i := range chunk {
		codes[i] = chunk[i].SchoolCode
	}
	existing, err := s.store.ExistingCodes(ctx, codes)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to look up existing school codes")
		run.failChunk(chunk, len(chunk), err)
		return
	}

	pending := make([]*model.Tenant, 0, len(chunk))
	pendingRows := make([]*model.TenantRow, 0, len(chunk))
	for i := range chunk {
		row := &chunk[i]
		switch {
		case existing[row.SchoolCode]:
			run.fail(row, fmt.Sprintf("Tenant with school_code %s already exists", row.SchoolCode))
		case seen[row.SchoolCode]:
			run.fail(row, fmt.Sprintf("Duplicate school_code %s in upload", row.SchoolCode))
		default:
			seen[row.SchoolCode] = true
			pending = append(pending, model.NewTenantFromRow(row))
			pendingRows = append(pendingRows, row)
		}
	}
	if len(pending) == 0 {
		return
	}

	err = s.store.InsertBatch(ctx, pending)
	switch {
	case err == nil:
		run.res.Successful += len(pending)
	case rowLevel(err):
		s.log.Warn().Err(err).Int("rows", len(pending)).Msg("Batch insert rejected a row, retrying row by row")
		for i, t := range pending {
			if err := s.store.InsertOne(ctx, t); err != nil {
				run.fail(pendingRows[i], insertErrorMessage(t.SchoolCode, err))
				continue
			}
			run.res.Successful++
		}
	default:
		s.log.Error().Err(err).Int("rows", len(pending)).Msg("Batch insert failed")
		run.failChunk(chunk, len(pending), err)
	}
}

// rowLevel reports whether a batch error is caused by individual rows, so
// retrying one row at a time isolates them.
func rowLevel(err error) bool {
	return errors.Is(err, repository.ErrDuplicate) || errors.Is(err, repository.ErrInvalidData)
}

func insertErrorMessage(code string, err error) string {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		return fmt.Sprintf("Tenant with school_code %s conflicts with existing data (%s)", code, dup.Constraint)
	}
	var bad *repository.DataError
	if errors.As(err, &bad) {
		return fmt.Sprintf("Tenant with school_code %s has invalid data: %s", code, bad.Message)
	}
	return fmt.Sprintf("Failed to create tenant %s: %v", code, err)
}

// ─── Update ─────────────────────────────────────────────────────────

// Update applies the non-empty columns of each row to the active tenant
// with the same school_code. Re-running the same rows is idempotent.
func (s *TenantBulkService) Update(ctx context.Context, rows []model.TenantRow, progress ProgressFunc) (*model.BulkResult, error) {
	run := &chunkRun{res: model.BulkResult{TotalRows: len(rows)}}

	for _, chunk := range s.chunks(rows) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.updateChunk(ctx, run, chunk)
		run.processed += len(chunk)
		report(progress, run)
	}
	return &run.res, nil
}

func (s *TenantBulkService) updateChunk(ctx context.Context, run *chunkRun, chunk []model.TenantRow) {
	candidates := make([]model.TenantRow, 0, len(chunk))
	for i := range chunk {
		row := &chunk[i]
		if row.SchoolCode == "" {
			run.fail(row, "Missing school_code")
			continue
		}
		if !row.HasUpdates() {
			run.fail(row, "No valid data to update")
			continue
		}
		candidates = append(candidates, *row)
	}
	if len(candidates) == 0 {
		return
	}

	codes := make([]string, len(candidates))
	for i := range candidates {
		codes[i] = candidates[i].SchoolCode
	}
	active, err := s.store.ActiveCodes(ctx, codes)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to look up active school codes")
		run.failChunk(chunk, len(candidates), err)
		return
	}

	pending := make([]model.TenantRow, 0, len(candidates))
	for i := range candidates {
		if !active[candidates[i].SchoolCode] {
			run.fail(&candidates[i], notFoundMessage(candidates[i].SchoolCode))
			continue
		}
		pending = append(pending, candidates[i])
	}
	if len(pending) == 0 {
		return
	}

	missing, err := s.store.UpdateBatch(ctx, pending)
	switch {
	case err == nil:
		gone := make(map[string]bool, len(missing))
		for _, code := range missing {
			gone[code] = true
		}
		for i := range pending {
			if gone[pending[i].SchoolCode] {
				run.fail(&pending[i], notFoundMessage(pending[i].SchoolCode))
				continue
			}
			run.res.Successful++
		}
	case rowLevel(err):
		s.log.Warn().Err(err).Int("rows", len(pending)).Msg("Batch update rejected a row, retrying row by row")
		for i := range pending {
			ok, err := s.store.UpdateOne(ctx, &pending[i])
			switch {
			case err != nil:
				run.fail(&pending[i], updateErrorMessage(pending[i].SchoolCode, err))
			case !ok:
				run.fail(&pending[i], notFoundMessage(pending[i].SchoolCode))
			default:
				run.res.Successful++
			}
		}
	default:
		s.log.Error().Err(err).Int("rows", len(pending)).Msg("Batch update failed")
		run.failChunk(chunk, len(pending), err)
	}
}

func notFoundMessage(code string) string {
	return fmt.Sprintf("Tenant with school_code %s not found", code)
}

func updateErrorMessage(code string, err error) string {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		return fmt.Sprintf("Update of tenant %s conflicts with existing data (%s)", code, dup.Constraint)
	}
	var bad *repository.DataError
	if errors.As(err, &bad) {
		return fmt.Sprintf("Update of tenant %s has invalid data: %s", code, bad.Message)
	}
	return fmt.Sprintf("Failed to update tenant %s: %v", code, err)
}

func report(progress ProgressFunc, run *chunkRun) {
	if progress == nil {
		return
	}
	progress(tracker.Progress{
		Processed:  run.processed,
		Successful: run.res.Successful,
		Failed:     run.res.Failed,
	})
}
