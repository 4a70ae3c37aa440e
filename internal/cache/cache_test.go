package cache

import (
	"fmt"
	"testing"
	"time"

	"marketfeed/internal/model"
)

func TestKey(t *testing.T) {
	if got := Key("AAPL", "2024-01-01", "2024-03-31"); got != "AAPL_2024-01-01_2024-03-31" {
		t.Fatalf("got %q", got)
	}
}

func TestStore_PricesRoundTrip(t *testing.T) {
	s := New(Options{})
	key := Key("AAPL", "2024-01-01", "2024-03-31")

	if _, ok := s.Prices(key); ok {
		t.Fatal("hit on empty store")
	}

	in := []model.Price{{Time: "2024-01-02T00:00:00Z", Close: 185.6, Volume: 1000}}
	s.SetPrices(key, in)

	got, ok := s.Prices(key)
	if !ok || len(got) != 1 || got[0].Close != 185.6 {
		t.Fatalf("unexpected read-back: ok=%v got=%+v", ok, got)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New(Options{})
	s.SetPrices("k", []model.Price{{Time: "2024-01-02T00:00:00Z", Close: 10}})

	first, _ := s.Prices("k")
	first[0].Close = -1

	second, _ := s.Prices("k")
	if second[0].Close != 10 {
		t.Fatalf("caller mutation leaked into cache: %+v", second)
	}
}

func TestStore_SetStoresCopy(t *testing.T) {
	s := New(Options{})
	in := []model.Price{{Time: "2024-01-02T00:00:00Z", Close: 10}}
	s.SetPrices("k", in)
	in[0].Close = -1

	got, _ := s.Prices("k")
	if got[0].Close != 10 {
		t.Fatalf("writer mutation leaked into cache: %+v", got)
	}
}

func TestStore_TablesAreIndependent(t *testing.T) {
	s := New(Options{})
	s.SetPrices("k", []model.Price{{Time: "2024-01-02T00:00:00Z"}})
	if _, ok := s.CompanyNews("k"); ok {
		t.Fatal("same key must not cross categories")
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s := New(Options{TTL: 10 * time.Millisecond})
	s.SetCompanyNews("k", []model.CompanyNews{{Ticker: "AAPL", Title: "t"}})

	if _, ok := s.CompanyNews("k"); !ok {
		t.Fatal("fresh entry should hit")
	}
	time.Sleep(25 * time.Millisecond)
	if _, ok := s.CompanyNews("k"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestStore_MaxEntriesEviction(t *testing.T) {
	s := New(Options{MaxEntries: 3})
	for i := 0; i < 10; i++ {
		s.SetPrices(fmt.Sprintf("k%d", i), []model.Price{{Close: float64(i)}})
	}
	// the just-set key always survives eviction
	if got, ok := s.Prices("k9"); !ok || got[0].Close != 9 {
		t.Fatalf("latest entry evicted: ok=%v got=%+v", ok, got)
	}
	hits := 0
	for i := 0; i < 10; i++ {
		if _, ok := s.Prices(fmt.Sprintf("k%d", i)); ok {
			hits++
		}
	}
	if hits > 3 {
		t.Fatalf("table exceeded cap: %d entries", hits)
	}
}
