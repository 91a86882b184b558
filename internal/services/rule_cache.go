package services

import (
	"sync"
	"time"

	"github.com/localnerve/autogift/internal/models"
)

type ruleCacheEntry struct {
	rules   []models.GiftRule
	expires time.Time
}

// ruleCache holds each user's rule list for a short TTL.
// A per-user generation is bumped on every mutation; a load that started under an
// older generation is not stored.
type ruleCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]ruleCacheEntry
	gens    map[string]uint64
	now     func() time.Time
}

func newRuleCache(ttl time.Duration) *ruleCache {
	return &ruleCache{
		ttl:     ttl,
		entries: make(map[string]ruleCacheEntry),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

func (c *ruleCache) get(userID string) ([]models.GiftRule, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return cloneRules(entry.rules), true
}

// generation is read before loading rules and handed back to set
func (c *ruleCache) generation(userID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[userID]
}

// bump marks the user's cached rules stale and returns the new generation
func (c *ruleCache) bump(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[userID]++
	delete(c.entries, userID)
	return c.gens[userID]
}

// set stores rules loaded under gen, unless a mutation has bumped it since
func (c *ruleCache) set(userID string, gen uint64, rules []models.GiftRule) bool {
	if c.ttl <= 0 {
		return false
	}

	stored := cloneRules(rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return false
	}
	c.entries[userID] = ruleCacheEntry{rules: stored, expires: c.now().Add(c.ttl)}

	// sweep expired entries while holding the lock
	for id, entry := range c.entries {
		if c.now().After(entry.expires) {
			delete(c.entries, id)
		}
	}
	return true
}

func (c *ruleCache) invalidate(userID string) {
	c.bump(userID)
}

func cloneRules(rules []models.GiftRule) []models.GiftRule {
	out := make([]models.GiftRule, len(rules))
	for i := range rules {
		out[i] = cloneRule(rules[i])
	}
	return out
}

// cloneRule copies a rule along with everything its pointer fields reference
func cloneRule(r models.GiftRule) models.GiftRule {
	r.RecipientID = clonePtr(r.RecipientID)
	r.PendingRecipientEmail = clonePtr(r.PendingRecipientEmail)
	r.ScheduledDate = clonePtr(r.ScheduledDate)
	r.BudgetLimit = clonePtr(r.BudgetLimit)
	r.SpecificProductID = clonePtr(r.SpecificProductID)
	r.Recipient = clonePtr(r.Recipient)
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
