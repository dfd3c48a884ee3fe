package query

import "strings"

const (
	TypeGetOrder        = "payments.query.order.get"
	TypeGetRetryTask    = "payments.query.retry_task.get"
	TypeListDeadLetters = "payments.query.dead_letters.list"
)

type GetOrderMessage struct {
	Reference string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	if strings.TrimSpace(m.Reference) == "" {
		return queryValidationError("reference", "reference is required")
	}
	return nil
}

type GetRetryTaskMessage struct {
	TaskID string
}

func (GetRetryTaskMessage) Type() string { return TypeGetRetryTask }

func (m GetRetryTaskMessage) Validate() error {
	if strings.TrimSpace(m.TaskID) == "" {
		return queryValidationError("task_id", "task id is required")
	}
	return nil
}

type ListDeadLettersMessage struct {
	Limit int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
