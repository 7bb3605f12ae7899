package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/audioscore/metrics"
)

// Cache stores finished scores across runs. Implementations must be safe
// for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (metrics.Value, bool)
	Put(ctx context.Context, key string, v metrics.Value)
}

// Engine runs a plan's batches against a backend.
type Engine struct {
	// Retries is the number of extra attempts for a failed batch before it
	// is split into single-item calls.
	Retries int
	Cache   Cache
	Log     logrus.FieldLogger
}

// Run scores every batch in plan and returns one outcome per slot. A failing
// batch is retried, then scored item by item so that only the items that
// still fail are marked. Slots not started before ctx is done are marked
// canceled.
func (e *Engine) Run(ctx context.Context, plan *Plan, backend metrics.Backend, checkpoint string) []Outcome {
	log := e.logger().WithField("metric", plan.Metric.ID)
	out := make([]Outcome, len(plan.Slots))
	for bi, b := range plan.Batches {
		if ctx.Err() != nil {
			e.cancel(plan, b.Slots, out)
			continue
		}
		pending := e.fromCache(ctx, plan, b.Slots, checkpoint, out)
		if len(pending) == 0 {
			continue
		}
		start := time.Now()
		err := e.scoreBatch(ctx, plan, backend, pending, checkpoint, out)
		if err == nil {
			log.WithFields(logrus.Fields{"batch": bi, "items": len(pending), "took": time.Since(start)}).Debug("batch scored")
			continue
		}
		if ctx.Err() != nil {
			e.cancel(plan, pending, out)
			continue
		}
		log.WithError(err).WithField("batch", bi).Warn("batch failed, scoring items individually")
		if len(pending) == 1 {
			e.fail(plan, pending[0], err, out)
			continue
		}
		for _, si := range pending {
			if ctx.Err() != nil {
				e.cancel(plan, []int{si}, out)
				continue
			}
			if err := e.score(ctx, plan, backend, []int{si}, checkpoint, out); err != nil {
				if ctx.Err() != nil {
					e.cancel(plan, []int{si}, out)
					continue
				}
				log.WithError(err).WithField("id", plan.Slots[si].Item.ID).Warn("item failed")
				e.fail(plan, si, err, out)
			}
		}
	}
	return out
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

func (e *Engine) scoreBatch(ctx context.Context, plan *Plan, backend metrics.Backend, slots []int, checkpoint string, out []Outcome) error {
	var err error
	for attempt := 0; attempt <= max(e.Retries, 0); attempt++ {
		if err = e.score(ctx, plan, backend, slots, checkpoint, out); err == nil || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (e *Engine) score(ctx context.Context, plan *Plan, backend metrics.Backend, slots []int, checkpoint string, out []Outcome) error {
	items := make([]metrics.Item, len(slots))
	for i, si := range slots {
		items[i] = plan.Slots[si].Item
	}
	vals, err := backend.Score(ctx, items)
	if err != nil {
		return err
	}
	if len(vals) != len(items) {
		return fmt.Errorf("backend returned %d scores for %d items", len(vals), len(items))
	}
	for _, v := range vals {
		if !v.Finite() {
			return errors.New("backend returned a non-finite score")
		}
	}
	for i, si := range slots {
		out[si] = Outcome{Value: vals[i]}
		if e.Cache != nil && plan.Slots[si].Key != "" {
			e.Cache.Put(ctx, cacheKey(checkpoint, plan.Slots[si].Key), vals[i])
		}
	}
	return nil
}

func (e *Engine) fromCache(ctx context.Context, plan *Plan, slots []int, checkpoint string, out []Outcome) []int {
	if e.Cache == nil {
		return slots
	}
	pending := make([]int, 0, len(slots))
	for _, si := range slots {
		key := plan.Slots[si].Key
		if key == "" {
			pending = append(pending, si)
			continue
		}
		if v, ok := e.Cache.Get(ctx, cacheKey(checkpoint, key)); ok {
			out[si] = Outcome{Value: v}
			continue
		}
		pending = append(pending, si)
	}
	return pending
}

func (e *Engine) cancel(plan *Plan, slots []int, out []Outcome) {
	for _, si := range slots {
		s := plan.Slots[si]
		out[si] = Outcome{Err: &RequestError{ID: s.Item.ID, Metric: plan.Metric.ID, Reason: "canceled before scoring", Err: ErrCanceled}}
	}
}

func (e *Engine) fail(plan *Plan, si int, err error, out []Outcome) {
	s := plan.Slots[si]
	out[si] = Outcome{Err: &RequestError{ID: s.Item.ID, Metric: plan.Metric.ID, Reason: err.Error(), Err: ErrScoring}}
}

func cacheKey(checkpoint, key string) string {
	return checkpoint + "|" + key
}
