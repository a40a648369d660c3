// Package lookup resolves option lists drawn from record collections.
package lookup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/accessor"
	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/model"
)

// Provider resolves LookupDefinitions to option lists with caching.
type Provider struct {
	registry   *definition.Registry
	store      store.Store
	metrics    *observability.Metrics
	logger     *zap.Logger
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	collection string
	options    []model.OptionDescriptor
	expiresAt  time.Time
}

// NewProvider creates a new Provider. A nil metrics disables cache metrics;
// a nil logger discards logs.
func NewProvider(
	registry *definition.Registry,
	records store.Store,
	metrics *observability.Metrics,
	defaultTTL time.Duration,
	maxEntries int,
	logger *zap.Logger,
) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Provider{
		registry:   registry,
		store:      records,
		metrics:    metrics,
		logger:     logger,
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// GetLookup resolves a lookup to its options, filtered by query on label.
func (p *Provider) GetLookup(ctx context.Context, lookupID, query string) (model.LookupResponse, error) {
	options, cached, err := p.resolve(ctx, lookupID)
	if err != nil {
		return model.LookupResponse{}, err
	}
	return model.LookupResponse{
		Data: model.LookupPayload{Options: filterOptions(options, query)},
		Meta: map[string]any{"cached": cached},
	}, nil
}

// Options returns every option of a lookup.
func (p *Provider) Options(ctx context.Context, lookupID string) ([]model.OptionDescriptor, error) {
	options, _, err := p.resolve(ctx, lookupID)
	return options, err
}

func (p *Provider) resolve(ctx context.Context, lookupID string) ([]model.OptionDescriptor, bool, error) {
	def, ok := p.registry.GetLookup(lookupID)
	if !ok {
		return nil, false, model.NewNotFoundError(fmt.Sprintf("lookup %q not found", lookupID))
	}

	if options, hit := p.getFromCache(lookupID); hit {
		if p.metrics != nil {
			p.metrics.RecordLookupCacheHit(lookupID)
		}
		return options, true, nil
	}
	if p.metrics != nil {
		p.metrics.RecordLookupCacheMiss(lookupID)
	}

	ctx, span := observability.StartSpan(ctx, "lookup.fetch", observability.AttrLookupID.String(lookupID))
	records, err := p.store.List(ctx, def.Collection)
	observability.EndSpanWithError(span, err)
	if err != nil {
		p.logger.Warn("lookup fetch failed",
			zap.String("lookup_id", lookupID),
			zap.String("collection", def.Collection),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("lookup %q: %w", lookupID, err)
	}

	options := mapRecords(records, def)
	p.putInCache(lookupID, def.Collection, options, p.ttl(def))
	return options, false, nil
}

func (p *Provider) ttl(def model.LookupDefinition) time.Duration {
	if def.Cache != nil && def.Cache.TTL != "" {
		parsed, err := time.ParseDuration(def.Cache.TTL)
		if err == nil {
			return parsed
		}
		p.logger.Warn("invalid lookup cache ttl, using default",
			zap.String("lookup_id", def.ID),
			zap.String("ttl", def.Cache.TTL),
			zap.Duration("default", p.defaultTTL),
		)
	}
	return p.defaultTTL
}

// getFromCache returns cached options if the entry exists and hasn't expired.
func (p *Provider) getFromCache(key string) ([]model.OptionDescriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, exists := p.cache[key]
	if !exists || p.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.options, true
}

// putInCache stores options in the cache with TTL.
func (p *Provider) putInCache(key, collection string, options []model.OptionDescriptor, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.cache[key]; !exists && len(p.cache) >= p.maxEntries {
		p.evictLocked()
	}

	p.cache[key] = cacheEntry{
		collection: collection,
		options:    options,
		expiresAt:  p.now().Add(ttl),
	}
}

// evictLocked removes expired entries, then the entry closest to expiry if
// the cache is still full. Must be called with mu held.
func (p *Provider) evictLocked() {
	now := p.now()
	for k, v := range p.cache {
		if now.After(v.expiresAt) {
			delete(p.cache, k)
		}
	}
	if len(p.cache) < p.maxEntries {
		return
	}
	var oldest string
	var oldestAt time.Time
	for k, v := range p.cache {
		if oldest == "" || v.expiresAt.Before(oldestAt) {
			oldest, oldestAt = k, v.expiresAt
		}
	}
	delete(p.cache, oldest)
	p.logger.Debug("lookup cache full, evicted entry",
		zap.String("lookup_id", oldest),
		zap.Int("max_entries", p.maxEntries),
	)
}

// Invalidate removes the cached options of one lookup.
func (p *Provider) Invalidate(lookupID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, lookupID)
}

// InvalidateCollection removes every cached lookup drawn from collection.
func (p *Provider) InvalidateCollection(collection string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range p.cache {
		if v.collection == collection {
			delete(p.cache, k)
		}
	}
}

// CacheLen returns the number of entries in the cache. For testing.
func (p *Provider) CacheLen() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// mapRecords turns records into options. Fields may be dot-paths; records
// with neither label nor value are skipped.
func mapRecords(records []model.Record, def model.LookupDefinition) []model.OptionDescriptor {
	options := make([]model.OptionDescriptor, 0, len(records))
	for _, r := range records {
		label := accessor.String(accessor.Get(r, def.LabelField))
		value := accessor.String(accessor.Get(r, def.ValueField))
		if label == "" && value == "" {
			continue
		}
		options = append(options, model.OptionDescriptor{Label: label, Value: value})
	}
	return options
}

// filterOptions filters options by query (case-insensitive match on label).
func filterOptions(options []model.OptionDescriptor, query string) []model.OptionDescriptor {
	if query == "" {
		return options
	}

	q := strings.ToLower(query)
	filtered := []model.OptionDescriptor{}
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), q) {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}
