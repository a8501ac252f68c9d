package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"firewatch/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TierStore is the slice of the persistence layer the catalog and
// classifier need.
type TierStore interface {
	GetTier(ctx context.Context, id uuid.UUID) (store.SeverityTier, error)
	ListTiers(ctx context.Context) ([]store.SeverityTier, error)
	TierRequirements(ctx context.Context, tierID uuid.UUID) ([]store.TierRequirement, error)
	CountOpenIncidentsByTier(ctx context.Context, tierID uuid.UUID) (int64, error)
	DeleteTier(ctx context.Context, tierID uuid.UUID) error
}

// Cache is the byte-level cache the catalog reads through. store.CatalogCache
// implements it; tests pass nil-safe fakes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, key string)
}

// Catalog is the read-only lookup from severity tier to its ordered
// requirement list. Requirement writes are an external concern; this path
// only reads, through a cache-aside layer.
type Catalog struct {
	tiers TierStore
	cache Cache
	log   zerolog.Logger
}

// cachedTier is the JSON shape stored in the cache.
type cachedTier struct {
	Tier         store.SeverityTier      `json:"tier"`
	Requirements []store.TierRequirement `json:"requirements"`
}

func NewCatalog(tiers TierStore, cache Cache, log zerolog.Logger) *Catalog {
	return &Catalog{tiers: tiers, cache: cache, log: log}
}

func catalogKey(tierID uuid.UUID) string {
	return "catalog:tier:" + tierID.String()
}

// Tier resolves a severity tier by id, KindNotFound when it does not exist.
func (c *Catalog) Tier(ctx context.Context, tierID uuid.UUID) (store.SeverityTier, error) {
	if entry, ok := c.lookup(ctx, tierID); ok {
		return entry.Tier, nil
	}
	tier, err := c.tiers.GetTier(ctx, tierID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.SeverityTier{}, NotFound("severity tier not found")
		}
		return store.SeverityTier{}, fmt.Errorf("load severity tier: %w", err)
	}
	return tier, nil
}

// RequirementsFor returns the tier's ordered (vehicle type, count) list.
func (c *Catalog) RequirementsFor(ctx context.Context, tierID uuid.UUID) ([]store.TierRequirement, error) {
	if entry, ok := c.lookup(ctx, tierID); ok {
		return entry.Requirements, nil
	}

	tier, err := c.tiers.GetTier(ctx, tierID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, NotFound("severity tier not found")
		}
		return nil, fmt.Errorf("load severity tier: %w", err)
	}
	reqs, err := c.tiers.TierRequirements(ctx, tierID)
	if err != nil {
		return nil, fmt.Errorf("load tier requirements: %w", err)
	}

	if c.cache != nil {
		if data, err := json.Marshal(cachedTier{Tier: tier, Requirements: reqs}); err == nil {
			c.cache.Set(ctx, catalogKey(tierID), data)
		}
	}
	return reqs, nil
}

// TotalRequired sums the requirement counts for a tier.
func (c *Catalog) TotalRequired(ctx context.Context, tierID uuid.UUID) (int32, error) {
	reqs, err := c.RequirementsFor(ctx, tierID)
	if err != nil {
		return 0, err
	}
	return totalRequired(reqs), nil
}

// invalidate drops the cached entry after a tier mutation.
func (c *Catalog) invalidate(ctx context.Context, tierID uuid.UUID) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, catalogKey(tierID))
	}
}

func (c *Catalog) lookup(ctx context.Context, tierID uuid.UUID) (cachedTier, bool) {
	if c.cache == nil {
		return cachedTier{}, false
	}
	data, ok := c.cache.Get(ctx, catalogKey(tierID))
	if !ok {
		return cachedTier{}, false
	}
	var entry cachedTier
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn().Err(err).Str("tier_id", tierID.String()).Msg("corrupt catalog cache entry")
		return cachedTier{}, false
	}
	return entry, true
}

func totalRequired(reqs []store.TierRequirement) int32 {
	var total int32
	for _, r := range reqs {
		total += r.Count
	}
	return total
}
