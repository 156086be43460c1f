package emission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tb-cache.msgpack")
	sensor := testSensor(t)
	sp := packWithDepth(t, 0.8)
	want := Result{Channels: []ChannelTB{
		{FrequencyHz: 18e9, Pol: PolV, TBK: 241.5},
		{FrequencyHz: 36e9, Pol: PolV, TBK: 205.25},
	}}

	c, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if _, ok := c.Get(sensor, sp); ok {
		t.Fatal("empty cache reported a hit")
	}
	c.Put(sensor, sp, want)
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reopened, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache (reopen): %v", err)
	}
	got, ok := reopened.Get(sensor, sp)
	if !ok {
		t.Fatal("expected a hit after reopen")
	}
	if len(got.Channels) != 2 || got.Channels[0] != want.Channels[0] || got.Channels[1] != want.Channels[1] {
		t.Errorf("cached result changed: %+v != %+v", got, want)
	}

	// A different snowpack is a different key.
	if _, ok := reopened.Get(sensor, packWithDepth(t, 0.9)); ok {
		t.Error("different snowpack must not hit the cache")
	}
}

func TestRunnerUsesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tb-cache.msgpack")
	sensor := testSensor(t)
	packs := []snowpack.Description{packWithDepth(t, 0.5), packWithDepth(t, 1.0)}

	cache, err := OpenCache(path)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}

	var calls int
	sim := &stubSimulator{fn: func(ctx context.Context, sensor Sensor, sp snowpack.Description) (Result, error) {
		calls++
		return Result{Channels: []ChannelTB{{FrequencyHz: 18e9, Pol: PolV, TBK: 200 + sp.TotalDepth()}}}, nil
	}}
	runner := NewRunner(sim, zap.NewNop().Sugar(), 1)
	runner.SetCache(cache)

	first := runner.Run(context.Background(), sensor, packs)
	if calls != 2 {
		t.Fatalf("expected 2 simulator calls on cold cache, got %d", calls)
	}

	second := runner.Run(context.Background(), sensor, packs)
	if calls != 2 {
		t.Errorf("expected warm run to hit the cache, simulator called %d times", calls)
	}
	for i := range packs {
		a, _ := first.Items[i].Result.TB(18e9, PolV)
		b, _ := second.Items[i].Result.TB(18e9, PolV)
		if a != b {
			t.Errorf("item %d: warm result %v differs from cold %v", i, b, a)
		}
	}

	// Failed simulations must not be cached.
	failing := &stubSimulator{fn: func(ctx context.Context, sensor Sensor, sp snowpack.Description) (Result, error) {
		return Result{}, errors.New("no convergence")
	}}
	fr := NewRunner(failing, zap.NewNop().Sugar(), 1)
	fr.SetCache(cache)
	batch := fr.Run(context.Background(), sensor, []snowpack.Description{packWithDepth(t, 2.5)})
	if batch.Items[0].OK() {
		t.Fatal("expected failure")
	}
	if _, ok := cache.Get(sensor, packWithDepth(t, 2.5)); ok {
		t.Error("failed simulation ended up in the cache")
	}
}
