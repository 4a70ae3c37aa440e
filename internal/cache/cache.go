// Package cache is the process-local store for normalized records, one
// logical table per data category, keyed by the composite query key. Only the
// feed service reads or writes it; adapters never touch it directly.
package cache

import (
	"strings"
	"sync"
	"time"

	"marketfeed/internal/model"
)

// Options bound a store. The zero value means entries never expire and tables
// grow without limit, which matches what the rest of the system assumes for a
// short-lived process; long-running deployments should set both.
type Options struct {
	TTL        time.Duration
	MaxEntries int // per table
}

// Store holds the per-category tables.
type Store struct {
	prices    table[model.Price]
	metrics   table[model.FinancialMetrics]
	lineItems table[model.LineItem]
	insiders  table[model.InsiderTrade]
	news      table[model.CompanyNews]
}

func New(opts Options) *Store {
	s := &Store{}
	for _, t := range []interface{ configure(Options) }{
		&s.prices, &s.metrics, &s.lineItems, &s.insiders, &s.news,
	} {
		t.configure(opts)
	}
	return s
}

// Key builds a composite cache key from query parameters.
func Key(parts ...string) string {
	return strings.Join(parts, "_")
}

func (s *Store) Prices(key string) ([]model.Price, bool) { return s.prices.get(key) }
func (s *Store) SetPrices(key string, records []model.Price) {
	s.prices.set(key, records)
}

func (s *Store) FinancialMetrics(key string) ([]model.FinancialMetrics, bool) {
	return s.metrics.get(key)
}
func (s *Store) SetFinancialMetrics(key string, records []model.FinancialMetrics) {
	s.metrics.set(key, records)
}

func (s *Store) LineItems(key string) ([]model.LineItem, bool) { return s.lineItems.get(key) }
func (s *Store) SetLineItems(key string, records []model.LineItem) {
	s.lineItems.set(key, records)
}

func (s *Store) InsiderTrades(key string) ([]model.InsiderTrade, bool) { return s.insiders.get(key) }
func (s *Store) SetInsiderTrades(key string, records []model.InsiderTrade) {
	s.insiders.set(key, records)
}

func (s *Store) CompanyNews(key string) ([]model.CompanyNews, bool) { return s.news.get(key) }
func (s *Store) SetCompanyNews(key string, records []model.CompanyNews) {
	s.news.set(key, records)
}

type entry[T any] struct {
	expiresAt time.Time // zero: never expires
	records   []T
}

type table[T any] struct {
	ttl        time.Duration
	maxEntries int

	mu    sync.RWMutex
	items map[string]entry[T]
}

func (t *table[T]) configure(opts Options) {
	t.ttl = opts.TTL
	t.maxEntries = opts.MaxEntries
}

// get returns a copy of the cached records; callers own the result.
func (t *table[T]) get(key string) ([]T, bool) {
	t.mu.RLock()
	e, ok := t.items[key]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		t.mu.Lock()
		delete(t.items, key)
		t.mu.Unlock()
		return nil, false
	}
	out := make([]T, len(e.records))
	copy(out, e.records)
	return out, true
}

func (t *table[T]) set(key string, records []T) {
	stored := make([]T, len(records))
	copy(stored, records)

	var expiresAt time.Time
	if t.ttl > 0 {
		expiresAt = time.Now().Add(t.ttl)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items == nil {
		t.items = make(map[string]entry[T])
	}
	t.items[key] = entry[T]{expiresAt: expiresAt, records: stored}

	// best-effort cap: drop expired entries first, then arbitrary ones
	if t.maxEntries > 0 && len(t.items) > t.maxEntries {
		now := time.Now()
		for k, e := range t.items {
			if k == key {
				continue
			}
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(t.items, k)
			}
			if len(t.items) <= t.maxEntries {
				return
			}
		}
		for k := range t.items {
			if len(t.items) <= t.maxEntries {
				return
			}
			if k == key {
				continue
			}
			delete(t.items, k)
		}
	}
}
