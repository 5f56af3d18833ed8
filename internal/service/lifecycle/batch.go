package lifecycle

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const defaultBatchParallelism = 8

// BatchResult — исход перехода одного заказа из пакета.
type BatchResult struct {
	OrderID string
	Order   domain.Order
	Err     error
}

// TransitionBatch переводит несколько заказов в target с ограниченным параллелизмом.
// Заказы независимы: отказ одного не мешает остальным. Порядок результатов совпадает с ids.
func (m *Manager) TransitionBatch(ctx context.Context, ids []string, target domain.OrderStatus, parallelism int) []BatchResult {
	if parallelism <= 0 {
		parallelism = defaultBatchParallelism
	}
	results := make([]BatchResult, len(ids))

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, id := range ids {
		g.Go(func() error {
			order, err := m.TransitionOrderStatus(ctx, id, target)
			results[i] = BatchResult{OrderID: id, Order: order, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
