package dispatch

import (
	"context"
	"fmt"

	"firewatch/internal/geo"
	"firewatch/internal/store"

	"github.com/rs/zerolog"
)

// proximityThresholdKm bounds step 3 of classification: a coordinate-carrying
// rule only applies within 500 m of the incident.
const proximityThresholdKm = 0.5

// RuleStore is the slice of the persistence layer the classifier needs.
type RuleStore interface {
	FindRuleByExactAddress(ctx context.Context, address string) (store.AddressRule, error)
	FindRuleByContainment(ctx context.Context, address string) (store.AddressRule, error)
	ListRulesWithCoordinates(ctx context.Context) ([]store.AddressRule, error)
}

// Classifier infers the severity tier for a new incident from address and
// geographic signals. The priority order is load-bearing: exact textual
// matches outrank containment, containment outranks proximity, and
// proximity is bounded at 500 m before falling back to the lowest tier.
type Classifier struct {
	rules RuleStore
	tiers TierStore
	log   zerolog.Logger
}

func NewClassifier(rules RuleStore, tiers TierStore, log zerolog.Logger) *Classifier {
	return &Classifier{rules: rules, tiers: tiers, log: log}
}

// Classify resolves a severity tier, short-circuiting on the first matching
// signal. It only fails when no tiers are configured at all.
//
// Containment is checked symmetrically (incident address contains the rule
// text, or the rule text contains the incident address) on both the
// explicit-create and auto-level paths; the two call sites share this one
// implementation.
func (c *Classifier) Classify(ctx context.Context, lat, lon float64, address string) (store.SeverityTier, error) {
	if address != "" {
		rule, err := c.rules.FindRuleByExactAddress(ctx, address)
		if err == nil {
			return c.tierForRule(ctx, rule, "exact")
		}
		if !store.IsNotFound(err) {
			return store.SeverityTier{}, fmt.Errorf("exact address lookup: %w", err)
		}

		rule, err = c.rules.FindRuleByContainment(ctx, address)
		if err == nil {
			return c.tierForRule(ctx, rule, "containment")
		}
		if !store.IsNotFound(err) {
			return store.SeverityTier{}, fmt.Errorf("containment address lookup: %w", err)
		}
	}

	rules, err := c.rules.ListRulesWithCoordinates(ctx)
	if err != nil {
		return store.SeverityTier{}, fmt.Errorf("list geo rules: %w", err)
	}
	if nearest, distKm, ok := nearestRule(rules, lat, lon); ok && distKm < proximityThresholdKm {
		return c.tierForRule(ctx, nearest, "proximity")
	}

	return c.lowestTier(ctx)
}

func (c *Classifier) tierForRule(ctx context.Context, rule store.AddressRule, match string) (store.SeverityTier, error) {
	tier, err := c.tiers.GetTier(ctx, rule.TierID)
	if err != nil {
		if store.IsNotFound(err) {
			// Dangling rule reference; fall back rather than fail the create.
			c.log.Warn().Str("rule_id", rule.ID.String()).Str("match", match).Msg("address rule references missing tier")
			return c.lowestTier(ctx)
		}
		return store.SeverityTier{}, fmt.Errorf("load rule tier: %w", err)
	}
	return tier, nil
}

// lowestTier is the guaranteed fallback: the tier with the smallest ordinal.
func (c *Classifier) lowestTier(ctx context.Context) (store.SeverityTier, error) {
	tiers, err := c.tiers.ListTiers(ctx)
	if err != nil {
		return store.SeverityTier{}, fmt.Errorf("list tiers: %w", err)
	}
	if len(tiers) == 0 {
		return store.SeverityTier{}, InvalidRequest("no severity tiers configured")
	}
	return tiers[0], nil
}

func nearestRule(rules []store.AddressRule, lat, lon float64) (store.AddressRule, float64, bool) {
	var (
		best     store.AddressRule
		bestDist float64
		found    bool
	)
	for _, r := range rules {
		if r.Latitude == nil || r.Longitude == nil {
			continue
		}
		d := geo.DistanceKm(lat, lon, *r.Latitude, *r.Longitude)
		if !found || d < bestDist {
			best, bestDist, found = r, d, true
		}
	}
	return best, bestDist, found
}
