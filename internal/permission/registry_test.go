package permission

import (
	"log/slog"
	"os"
	"sync"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistry_ResolveOnce(t *testing.T) {
	r := NewRegistry(testLogger())

	var calls []bool
	tok := r.Register(func(granted bool) { calls = append(calls, granted) })
	if !tok.Valid() {
		t.Fatal("issued token should be valid")
	}
	if r.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", r.Pending())
	}

	if !r.Resolve(tok, true) {
		t.Fatal("first resolve should succeed")
	}
	if r.Resolve(tok, false) {
		t.Fatal("second resolve must be rejected")
	}
	if len(calls) != 1 || !calls[0] {
		t.Errorf("callback should run once with true, got %v", calls)
	}
	if r.Pending() != 0 {
		t.Errorf("expected 0 pending, got %d", r.Pending())
	}
}

func TestRegistry_StaleTokenAfterReuse(t *testing.T) {
	r := NewRegistry(testLogger())

	first := r.Register(func(bool) {})
	r.Resolve(first, false)

	fired := false
	second := r.Register(func(bool) { fired = true })
	if second.index != first.index {
		t.Fatalf("expected slot reuse, got %d vs %d", second.index, first.index)
	}
	if r.Resolve(first, true) {
		t.Fatal("stale token must not resolve the reused slot")
	}
	if fired {
		t.Fatal("stale token fired newer callback")
	}
	if !r.Resolve(second, true) || !fired {
		t.Fatal("current token should resolve")
	}
}

func TestRegistry_ZeroAndForeignTokens(t *testing.T) {
	r := NewRegistry(testLogger())
	if r.Resolve(Token{}, true) {
		t.Error("zero token must not resolve")
	}
	if r.Resolve(Token{index: 40, gen: 1}, true) {
		t.Error("out of range token must not resolve")
	}
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	r := NewRegistry(testLogger())

	var mu sync.Mutex
	count := 0
	tok := r.Register(func(bool) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(tok, true)
		}()
	}
	wg.Wait()

	if count != 1 {
		t.Errorf("callback ran %d times", count)
	}
}

func TestRegistry_CallbackMayRegister(t *testing.T) {
	r := NewRegistry(testLogger())
	var inner Token
	tok := r.Register(func(bool) {
		inner = r.Register(func(bool) {})
	})
	r.Resolve(tok, true)
	if !inner.Valid() || r.Pending() != 1 {
		t.Errorf("register from callback should work, pending=%d", r.Pending())
	}
}
