package cache

import (
	"context"
	"time"

	"github.com/netra-labs/netra/internal/connmon"
	"github.com/netra-labs/netra/internal/vpcmon"
	"github.com/netra-labs/netra/pkg/config"
)

// StatsCache caches monitoring snapshots so dashboard reads do not hit
// the monitors on every request
type StatsCache struct {
	service *Service
}

// NewStatsCache creates a new statistics cache
func NewStatsCache(service *Service) *StatsCache {
	return &StatsCache{
		service: service,
	}
}

// SetConnectionStats caches a connection monitor snapshot for one environment
func (sc *StatsCache) SetConnectionStats(ctx context.Context, env config.Environment, stats connmon.Stats) error {
	key := CacheKey{Prefix: PrefixConnectionStats, ID: string(env)}
	return sc.service.Set(ctx, key, stats, sc.service.config.SnapshotTTL)
}

// GetConnectionStats retrieves a cached connection monitor snapshot
func (sc *StatsCache) GetConnectionStats(ctx context.Context, env config.Environment) (*connmon.Stats, error) {
	key := CacheKey{Prefix: PrefixConnectionStats, ID: string(env)}
	var stats connmon.Stats
	if err := sc.service.Get(ctx, key, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetConnectorSnapshot caches the VPC connector monitor snapshot
func (sc *StatsCache) SetConnectorSnapshot(ctx context.Context, snap vpcmon.Snapshot) error {
	key := CacheKey{Prefix: PrefixConnectorState, ID: snap.Connector}
	return sc.service.Set(ctx, key, snap, sc.service.config.SnapshotTTL)
}

// GetConnectorSnapshot retrieves a cached connector snapshot
func (sc *StatsCache) GetConnectorSnapshot(ctx context.Context, connector string) (*vpcmon.Snapshot, error) {
	key := CacheKey{Prefix: PrefixConnectorState, ID: connector}
	var snap vpcmon.Snapshot
	if err := sc.service.Get(ctx, key, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// IncrementSessionCount bumps the daily session counter for an environment
func (sc *StatsCache) IncrementSessionCount(ctx context.Context, env config.Environment) (int64, error) {
	key := CacheKey{Prefix: PrefixSessionCount, ID: dailyID(env)}
	return sc.service.Increment(ctx, key, 1, 0)
}

// GetSessionCount reads the daily session counter for an environment
func (sc *StatsCache) GetSessionCount(ctx context.Context, env config.Environment) (int64, error) {
	key := CacheKey{Prefix: PrefixSessionCount, ID: dailyID(env)}
	return sc.service.GetCounter(ctx, key)
}

func dailyID(env config.Environment) string {
	return string(env) + ":" + time.Now().UTC().Format("2006-01-02")
}
