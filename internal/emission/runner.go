package emission

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/mjsandells/snowschool2024/internal/snowpack"
)

// WarnThinMedium classifies a snowpack whose total thickness is small
// relative to the penetration depth of the most scattering-limited channel.
// It is surfaced to the caller but never treated as failure.
const WarnThinMedium = "thin-medium"

// thinMediumFraction of the penetration depth below which the warning trips.
const thinMediumFraction = 0.1

// BatchItem is one slot of a batch result sequence. Err is nil on success;
// on simulator failure or cancellation it holds a *ModelError and Result is
// zero. Index always equals the input index.
type BatchItem struct {
	Index    int
	Result   Result
	Err      error
	Warnings []string
}

// OK reports whether this input produced a usable result.
func (it BatchItem) OK() bool { return it.Err == nil }

// Batch is the outcome of running a simulator over an ordered sequence of
// snowpack descriptions. Items[i] always corresponds to input i, regardless
// of completion order.
type Batch struct {
	Model string
	Items []BatchItem
}

// Completed returns the number of inputs that produced a result.
func (b Batch) Completed() int {
	n := 0
	for _, it := range b.Items {
		if it.OK() {
			n++
		}
	}
	return n
}

// FailedIndices returns the input indices that did not produce a result.
func (b Batch) FailedIndices() []int {
	var idx []int
	for _, it := range b.Items {
		if !it.OK() {
			idx = append(idx, it.Index)
		}
	}
	return idx
}

// Runner executes forward-model batches over a worker pool. All evaluations
// in a batch are independent: the descriptions are immutable and the sensor
// is shared read-only, so workers share no mutable state. The simulator call
// is the only blocking boundary in the pipeline.
type Runner struct {
	sim     Simulator
	workers int
	cache   *Cache
	logger  *zap.SugaredLogger
}

// NewRunner creates a batch runner. workers <= 0 selects GOMAXPROCS.
func NewRunner(sim Simulator, logger *zap.SugaredLogger, workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{sim: sim, workers: workers, logger: logger}
}

// SetCache attaches an on-disk result cache consulted before each simulator
// call. Entries are keyed by sensor and snowpack content, so a cache can be
// reused across runs.
func (r *Runner) SetCache(c *Cache) {
	r.cache = c
}

// Run simulates every snowpack in the batch and collects the results back
// into input order. Simulator failures are recorded per index and do not
// abort the rest of the batch. Cancelling ctx stops dispatching new items:
// already-completed items are returned as-is and undispatched ones carry a
// *ModelError wrapping the context error.
func (r *Runner) Run(ctx context.Context, sensor Sensor, packs []snowpack.Description) Batch {
	items := make([]BatchItem, len(packs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = r.runOne(ctx, sensor, packs[i], i)
			}
		}()
	}

dispatch:
	for i := range packs {
		select {
		case <-ctx.Done():
			r.logger.Warnf("batch cancelled after dispatching %d of %d inputs", i, len(packs))
			for k := i; k < len(packs); k++ {
				items[k] = BatchItem{Index: k,
					Err: &ModelError{Index: k, Model: r.sim.Name(), Err: ctx.Err()}}
			}
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	b := Batch{Model: r.sim.Name(), Items: items}
	if failed := b.FailedIndices(); len(failed) > 0 {
		r.logger.Warnf("forward model %s: %d of %d inputs failed: indices %v",
			r.sim.Name(), len(failed), len(packs), failed)
	}
	return b
}

func (r *Runner) runOne(ctx context.Context, sensor Sensor, sp snowpack.Description, index int) BatchItem {
	item := BatchItem{Index: index}

	if isThinMedium(sensor, sp) {
		item.Warnings = append(item.Warnings, WarnThinMedium)
		r.logger.Debugf("input %d: total depth %.3f m is thin relative to penetration depth", index, sp.TotalDepth())
	}

	if r.cache != nil {
		if res, ok := r.cache.Get(sensor, sp); ok {
			item.Result = res
			return item
		}
	}

	res, err := r.sim.Simulate(ctx, sensor, sp)
	if err != nil {
		item.Err = &ModelError{Index: index, Model: r.sim.Name(), Err: err}
		return item
	}
	item.Result = res

	if r.cache != nil {
		r.cache.Put(sensor, sp, res)
	}
	return item
}

// isThinMedium compares the stack thickness against the penetration depth of
// the highest-frequency (most scattering-limited) channel.
func isThinMedium(sensor Sensor, sp snowpack.Description) bool {
	freqs := sensor.Frequencies()
	fMax := freqs[0]
	for _, f := range freqs[1:] {
		if f > fMax {
			fMax = f
		}
	}
	var keSum, dSum float64
	for _, l := range sp.Layers() {
		ks, ka := extinction(fMax, l)
		keSum += (ks + ka) * l.ThicknessM
		dSum += l.ThicknessM
	}
	if dSum == 0 || keSum == 0 {
		return true
	}
	penetration := dSum / keSum // 1 / depth-averaged extinction
	return dSum < thinMediumFraction*penetration
}
