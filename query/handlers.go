package query

import (
	"context"

	"github.com/goliatone/go-payments/core"
)

type OrderReader interface {
	FindByReference(ctx context.Context, reference string) (core.Order, error)
}

// RetryTaskReader exposes the read side of the retry ledger. The SQL retry
// task store satisfies it.
type RetryTaskReader interface {
	Get(ctx context.Context, taskID string) (core.RetryTask, error)
	ListDead(ctx context.Context, limit int) ([]core.RetryTask, error)
}

type GetOrderQuery struct {
	reader OrderReader
}

func NewGetOrderQuery(reader OrderReader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (core.Order, error) {
	if q == nil || q.reader == nil {
		return core.Order{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.FindByReference(ctx, msg.Reference)
}

type GetRetryTaskQuery struct {
	reader RetryTaskReader
}

func NewGetRetryTaskQuery(reader RetryTaskReader) *GetRetryTaskQuery {
	return &GetRetryTaskQuery{reader: reader}
}

func (q *GetRetryTaskQuery) Query(ctx context.Context, msg GetRetryTaskMessage) (core.RetryTask, error) {
	if q == nil || q.reader == nil {
		return core.RetryTask{}, queryDependencyError("query: retry task reader is required")
	}
	return q.reader.Get(ctx, msg.TaskID)
}

type ListDeadLettersQuery struct {
	reader RetryTaskReader
}

func NewListDeadLettersQuery(reader RetryTaskReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(ctx context.Context, msg ListDeadLettersMessage) ([]core.RetryTask, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: retry task reader is required")
	}
	return q.reader.ListDead(ctx, msg.Limit)
}
