package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OrderStore persists the reconciliation view of orders. The paid
// transition is a single conditional UPDATE guarded on is_paid = FALSE, so
// concurrent deliveries of the same reference settle at the database.
type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*paymentOrderRecord]
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*paymentOrderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{db: db, repo: repo}, nil
}

// Create inserts a new order row. Orders normally originate outside this
// subsystem; this entry point exists for provisioning and tests.
func (s *OrderStore) Create(ctx context.Context, order core.Order) (core.Order, error) {
	if s == nil || s.repo == nil {
		return core.Order{}, core.NewInternalError("sqlstore: order store is not configured")
	}
	now := time.Now().UTC()
	record := &paymentOrderRecord{
		ID:          strings.TrimSpace(order.ID),
		Reference:   strings.TrimSpace(order.Reference),
		IsPaid:      order.IsPaid,
		TotalAmount: order.TotalAmountMinorUnits,
		Currency:    strings.TrimSpace(order.Currency),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if order.PaidAt != nil {
		paidAt := order.PaidAt.UTC()
		record.PaidAt = &paidAt
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Order{}, core.NewStoreUnavailableError(err, "sqlstore: create order")
	}
	return orderToDomain(created), nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, core.NewInternalError("sqlstore: order store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.Order{}, core.NewMalformedPayloadError("sqlstore: order id is required")
	}
	record := &paymentOrderRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Order{}, core.NewOrderNotFoundError(orderID)
		}
		return core.Order{}, core.NewStoreUnavailableError(err, "sqlstore: load order by id")
	}
	return orderToDomain(record), nil
}

func (s *OrderStore) FindByReference(ctx context.Context, reference string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, core.NewInternalError("sqlstore: order store is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return core.Order{}, core.NewMalformedPayloadError("sqlstore: reference is required")
	}
	record := &paymentOrderRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.reference = ? OR ?TableAlias.payment_reference = ?", reference, reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Order{}, core.NewOrderNotFoundError(reference)
		}
		return core.Order{}, core.NewStoreUnavailableError(err, "sqlstore: load order by reference")
	}
	return orderToDomain(record), nil
}

// MarkPaid applies the paid transition. The guard on is_paid makes duplicate
// and concurrent deliveries a no-op: only one UPDATE ever matches.
func (s *OrderStore) MarkPaid(ctx context.Context, reference string, state core.PaymentState) (bool, error) {
	if s == nil || s.db == nil {
		return false, core.NewInternalError("sqlstore: order store is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return false, core.NewMalformedPayloadError("sqlstore: reference is required")
	}
	now := time.Now().UTC()
	paidAt := state.PaidAt.UTC()
	if paidAt.IsZero() {
		paidAt = now
	}
	result, err := s.db.NewUpdate().
		Model((*paymentOrderRecord)(nil)).
		Set("is_paid = ?", true).
		Set("paid_at = ?", paidAt).
		Set("payment_reference = ?", strings.TrimSpace(state.TransactionID)).
		Set("payment_status = ?", strings.TrimSpace(state.Status)).
		Set("payment_channel = ?", strings.TrimSpace(state.Channel)).
		Set("payment_amount_minor_units = ?", state.AmountMinorUnits).
		Set("payment_currency = ?", strings.TrimSpace(state.Currency)).
		Set("payer_email = ?", strings.TrimSpace(state.PayerEmail)).
		Set("payment_paid_at = ?", paidAt).
		Set("updated_at = ?", now).
		Where("(reference = ? OR payment_reference = ?)", reference, reference).
		Where("is_paid = ?", false).
		Exec(ctx)
	if err != nil {
		return false, core.NewStoreUnavailableError(err, "sqlstore: mark order paid")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, core.NewStoreUnavailableError(err, "sqlstore: mark order paid row count")
	}
	return affected == 1, nil
}

// SavePendingReference attaches a freshly initialized gateway reference to
// an order so the eventual webhook can find it.
func (s *OrderStore) SavePendingReference(ctx context.Context, orderID string, reference string, payerEmail string) error {
	if s == nil || s.db == nil {
		return core.NewInternalError("sqlstore: order store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	reference = strings.TrimSpace(reference)
	if orderID == "" || reference == "" {
		return core.NewMalformedPayloadError("sqlstore: order id and reference are required")
	}
	result, err := s.db.NewUpdate().
		Model((*paymentOrderRecord)(nil)).
		Set("reference = ?", reference).
		Set("payment_reference = ?", reference).
		Set("payment_status = ?", "pending").
		Set("payer_email = ?", strings.TrimSpace(payerEmail)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return core.NewStoreUnavailableError(err, "sqlstore: save pending reference")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.NewStoreUnavailableError(err, "sqlstore: save pending reference row count")
	}
	if affected == 0 {
		return core.NewOrderNotFoundError(orderID)
	}
	return nil
}

func orderToDomain(record *paymentOrderRecord) core.Order {
	if record == nil {
		return core.Order{}
	}
	order := core.Order{
		ID:                    record.ID,
		Reference:             record.Reference,
		IsPaid:                record.IsPaid,
		TotalAmountMinorUnits: record.TotalAmount,
		Currency:              record.Currency,
		CreatedAt:             record.CreatedAt,
		UpdatedAt:             record.UpdatedAt,
	}
	if record.PaidAt != nil {
		paidAt := *record.PaidAt
		order.PaidAt = &paidAt
	}
	if record.PaymentReference != "" || record.PaymentStatus != "" {
		state := core.PaymentState{
			TransactionID:    record.PaymentReference,
			Status:           record.PaymentStatus,
			Channel:          record.PaymentChannel,
			AmountMinorUnits: record.PaymentAmount,
			Currency:         record.PaymentCurrency,
			PayerEmail:       record.PayerEmail,
		}
		if record.PaymentPaidAt != nil {
			state.PaidAt = *record.PaymentPaidAt
		}
		order.Payment = &state
	}
	return order
}

var _ core.OrderStore = (*OrderStore)(nil)
