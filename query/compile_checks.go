package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Querier[GetOrderMessage, core.Order]              = (*GetOrderQuery)(nil)
	_ gocmd.Querier[GetRetryTaskMessage, core.RetryTask]      = (*GetRetryTaskQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.RetryTask] = (*ListDeadLettersQuery)(nil)
)
