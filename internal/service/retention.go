package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"authlog-service/internal/config"
	"authlog-service/internal/geo"
	"authlog-service/internal/models"
	"authlog-service/internal/repository"
	"authlog-service/internal/util"
)

const retentionWorkers = 8

// Delete methods for retention runs.
const (
	DeleteMethodSoft = "soft"
	DeleteMethodHard = "hard"
)

// RetentionService ages out old activity records and backfills missing geo
// data. All of its operations are batch jobs meant for schedulers or admin
// endpoints, never the request path.
type RetentionService struct {
	store       repository.ActivityStore
	geoResolver *geo.Resolver
	config      config.RetentionConfig
	logger      *zap.Logger

	now func() time.Time
}

func NewRetentionService(store repository.ActivityStore, geoResolver *geo.Resolver, cfg config.RetentionConfig, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		store:       store,
		geoResolver: geoResolver,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// SweepResult summarizes one retention run.
type SweepResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Method  string    `json:"method"`
	Deleted int       `json:"deleted"`
}

// Sweep deletes records older than the configured retention window, in
// batches. Soft sweeps are idempotent: already soft-deleted records are
// never listed again, so a rerun deletes nothing new.
func (s *RetentionService) Sweep(ctx context.Context) (*SweepResult, error) {
	if !s.config.Enabled {
		return &SweepResult{Method: s.config.DeleteMethod}, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.config.Days)
	result := &SweepResult{Cutoff: cutoff, Method: s.config.DeleteMethod}

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	for {
		batch, err := s.store.ListOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list expired records: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		deleted, err := s.deleteBatch(ctx, batch)
		result.Deleted += deleted
		if err != nil {
			return result, err
		}

		if len(batch) < batchSize {
			break
		}
	}

	s.logger.Info("retention sweep finished",
		util.String("method", result.Method),
		util.Int("deleted", result.Deleted))
	return result, nil
}

// PruneSuspicious deletes all records flagged as anomalous, using the
// configured delete method. Meant for operator cleanup after an incident
// review.
func (s *RetentionService) PruneSuspicious(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{Method: s.config.DeleteMethod}

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	records, err := s.store.ListSuspicious(ctx, batchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list suspicious records: %w", err)
	}

	deleted, err := s.deleteBatch(ctx, records)
	result.Deleted += deleted
	if err != nil {
		return result, err
	}

	s.logger.Info("suspicious records pruned",
		util.Int("deleted", result.Deleted))
	return result, nil
}

// GeoSyncResult summarizes one geo backfill run.
type GeoSyncResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

// SyncGeo re-resolves geo data for records that have an IP but no country
// or city, e.g. records written while the geo database was unavailable.
func (s *RetentionService) SyncGeo(ctx context.Context, limit int) (*GeoSyncResult, error) {
	result := &GeoSyncResult{}
	if s.geoResolver == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = s.config.BatchSize
	}

	records, err := s.store.ListMissingGeo(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("failed to list records missing geo data: %w", err)
	}
	result.Scanned = len(records)

	for _, record := range records {
		location := s.geoResolver.Resolve(ctx, record.IPAddress)
		if location.Failed {
			continue
		}

		record.Country = location.Country
		record.City = location.City
		record.Location = location.Summary()
		record.Metadata = mergeMetadata(record.Metadata, location.Metadata())

		if err := s.store.UpdateGeo(ctx, record); err != nil {
			s.logger.Warn("failed to backfill geo data",
				util.String("ip", record.IPAddress),
				util.ErrorField(err))
			continue
		}
		result.Updated++
	}

	return result, nil
}

func (s *RetentionService) deleteBatch(ctx context.Context, batch []*models.AuthLog) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(retentionWorkers)

	for _, record := range batch {
		record := record
		g.Go(func() error {
			if s.config.DeleteMethod == DeleteMethodHard {
				return s.store.HardDelete(gctx, record)
			}
			return s.store.SoftDelete(gctx, record)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	return len(batch), nil
}

func mergeMetadata(existing, updates map[string]string) map[string]string {
	if existing == nil {
		return updates
	}
	for k, v := range updates {
		existing[k] = v
	}
	return existing
}
