package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type paymentOrderRecord struct {
	bun.BaseModel `bun:"table:payment_orders,alias:po"`

	ID               string     `bun:"id,pk"`
	Reference        string     `bun:"reference"`
	IsPaid           bool       `bun:"is_paid,notnull"`
	PaidAt           *time.Time `bun:"paid_at,nullzero"`
	TotalAmount      int64      `bun:"total_amount_minor_units,notnull"`
	Currency         string     `bun:"currency,notnull"`
	PaymentReference string     `bun:"payment_reference"`
	PaymentStatus    string     `bun:"payment_status"`
	PaymentChannel   string     `bun:"payment_channel"`
	PaymentAmount    int64      `bun:"payment_amount_minor_units"`
	PaymentCurrency  string     `bun:"payment_currency"`
	PayerEmail       string     `bun:"payer_email"`
	PaymentPaidAt    *time.Time `bun:"payment_paid_at,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type paymentRetryTaskRecord struct {
	bun.BaseModel `bun:"table:payment_retry_tasks,alias:prt"`

	ID            string     `bun:"id,pk"`
	Reference     string     `bun:"reference,notnull"`
	Kind          string     `bun:"kind,notnull"`
	Payload       []byte     `bun:"payload"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	MaxAttempts   int        `bun:"max_attempts,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	LastError     string     `bun:"last_error"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
