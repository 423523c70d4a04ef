package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ScalpPulse/internal/domain/models"
	"ScalpPulse/pkg/logger"
)

func quote(key string, ltp, oi float64) *models.ChainQuote {
	return &models.ChainQuote{InstrumentKey: key, LTP: ltp, OpenInterest: oi}
}

func testChain() []models.ChainEntry {
	return []models.ChainEntry{
		{StrikePrice: 43900, Call: quote("OPT|43900CE", 310, 1000), Put: quote("OPT|43900PE", 55, 4000)},
		{StrikePrice: 44000, Call: quote("OPT|44000CE", 240, 2000), Put: quote("OPT|44000PE", 80, 3000)},
		{StrikePrice: 44100, Call: quote("OPT|44100CE", 175, 5000), Put: quote("OPT|44100PE", 120, 5500)},
		{StrikePrice: 44200, Call: quote("OPT|44200CE", 118, 3000), Put: quote("OPT|44200PE", 190, 1500)},
		// One-sided row: excluded from the PCR aggregate.
		{StrikePrice: 44300, Call: quote("OPT|44300CE", 70, 9000)},
	}
}

func TestBuildSnapshotDerivesPCRAndTargetStrikes(t *testing.T) {
	snap := BuildSnapshot(44120, testChain(), 100, time.Now())

	if snap.CallOI != 11000 || snap.PutOI != 14000 {
		t.Fatalf("OI aggregates = %v/%v, want 11000/14000", snap.CallOI, snap.PutOI)
	}
	wantPCR := 14000.0 / 11000.0
	if snap.PCR != wantPCR {
		t.Fatalf("PCR = %v, want %v", snap.PCR, wantPCR)
	}

	if len(snap.Strikes) != 6 {
		t.Fatalf("got %d strikes, want 6 (CE+PE at ATM and ATM±step)", len(snap.Strikes))
	}

	want := map[string]models.StrikeType{
		"OPT|44000CE": models.StrikeITM,
		"OPT|44000PE": models.StrikeOTM,
		"OPT|44100CE": models.StrikeATM,
		"OPT|44100PE": models.StrikeATM,
		"OPT|44200CE": models.StrikeOTM,
		"OPT|44200PE": models.StrikeITM,
	}
	for _, st := range snap.Strikes {
		typ, ok := want[st.InstrumentKey]
		if !ok {
			t.Fatalf("unexpected strike %q in target window", st.InstrumentKey)
		}
		if st.Type != typ {
			t.Fatalf("strike %q tagged %v, want %v", st.InstrumentKey, st.Type, typ)
		}
		delete(want, st.InstrumentKey)
	}
}

func TestBuildSnapshotToleratesSparseChain(t *testing.T) {
	entries := []models.ChainEntry{
		{StrikePrice: 44100, Call: quote("OPT|44100CE", 175, 5000), Put: quote("OPT|44100PE", 120, 5500)},
		{StrikePrice: 44200, Put: quote("OPT|44200PE", 190, 1500)},
	}
	snap := BuildSnapshot(44120, entries, 100, time.Now())

	if len(snap.Strikes) != 3 {
		t.Fatalf("got %d strikes, want 3 (ATM pair plus lone 44200 put)", len(snap.Strikes))
	}
	if snap.CallOI != 5000 || snap.PutOI != 5500 {
		t.Fatalf("OI aggregates = %v/%v, want 5000/5500", snap.CallOI, snap.PutOI)
	}
}

func TestBuildSnapshotRoundsSpotDown(t *testing.T) {
	snap := BuildSnapshot(44049, testChain(), 100, time.Now())
	for _, st := range snap.Strikes {
		if st.Strike == 44000 && st.Type != models.StrikeATM {
			t.Fatalf("44000 tagged %v with spot 44049, want ATM", st.Type)
		}
		if st.Strike == 44200 {
			t.Fatalf("44200 selected with ATM 44000; window should stop at 44100")
		}
	}
}

type fakeFetcher struct {
	mu       sync.Mutex
	spot     float64
	entries  []models.ChainEntry
	failures int
	calls    int
}

func (f *fakeFetcher) SpotPrice(ctx context.Context, instrumentKey string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("connection reset")
	}
	return f.spot, nil
}

func (f *fakeFetcher) OptionChain(ctx context.Context, instrumentKey, expiry string) ([]models.ChainEntry, error) {
	return f.entries, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestFetchSnapshotRejectsZeroSpot(t *testing.T) {
	svc := New(Config{IndexKey: "NSE_INDEX|Nifty Bank"}, &fakeFetcher{spot: 0}, logger.Nop(), nil)
	if _, err := svc.FetchSnapshot(context.Background()); err == nil {
		t.Fatal("expected error for non-positive spot")
	}
}

func TestRunSurvivesConsecutiveFetchFailures(t *testing.T) {
	fetcher := &fakeFetcher{spot: 44120, entries: testChain(), failures: 3}
	svc := New(Config{
		IndexKey:     "NSE_INDEX|Nifty Bank",
		StrikeStep:   100,
		PollInterval: 5 * time.Millisecond,
	}, fetcher, logger.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan models.ContextSnapshot, 1)
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, out)
		close(done)
	}()

	// The first three polls fail; the fourth must still arrive.
	select {
	case snap := <-out:
		if snap.SpotPrice != 44120 {
			t.Fatalf("snapshot spot = %v, want 44120", snap.SpotPrice)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after transient failures; poll loop died")
	}
	if n := fetcher.callCount(); n < 4 {
		t.Fatalf("fetcher called %d times, want at least 4", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
