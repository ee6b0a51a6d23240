package service

import (
	"context"
	"sync"

	"household-catalog/pkg/logger"
)

// InlineDispatcher chạy recalculation trong goroutine của chính process.
// Context của caller bị bỏ cancel để user rời đi không làm dừng việc tính lại.
type InlineDispatcher struct {
	recalc AggregateRecalculator
	wg     sync.WaitGroup
}

var _ RecalcDispatcher = (*InlineDispatcher)(nil)

func NewInlineDispatcher(recalc AggregateRecalculator) *InlineDispatcher {
	return &InlineDispatcher{recalc: recalc}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, names []string) error {
	names = append([]string(nil), names...)
	detached := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.recalc.Recalculate(detached, names); err != nil {
			logger.ErrorWithFields("dispatch: recalculation failed", err, map[string]interface{}{"names": names})
		}
	}()
	return nil
}

// Wait chờ mọi recalculation đã dispatch chạy xong (shutdown, CLI, test)
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
