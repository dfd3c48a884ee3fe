package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	paymentmigrations "github.com/goliatone/go-payments/migrations"
	sqlstore "github.com/goliatone/go-payments/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-payments-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:payments-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = paymentmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != paymentmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, paymentmigrations.WithValidationTargets(paymentmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newStores(t *testing.T) (*sqlstore.OrderStore, *sqlstore.RetryTaskStore, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.OrderStore(), factory.RetryTaskStore(), cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, tableName := range []string{"payment_orders", "payment_retry_tasks"} {
		var found string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			tableName,
		).Scan(context.Background(), &found); err != nil {
			t.Fatalf("query sqlite master for %s: %v", tableName, err)
		}
		if found != tableName {
			t.Fatalf("expected %s table, got %q", tableName, found)
		}
	}
}

func TestOrderStore_MarkPaidIsConditional(t *testing.T) {
	ctx := context.Background()
	orders, _, cleanup := newStores(t)
	defer cleanup()

	created, err := orders.Create(ctx, core.Order{
		Reference:             "ref_100",
		TotalAmountMinorUnits: 500000,
		Currency:              "NGN",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := core.PaymentState{
		TransactionID:    "ref_100",
		Status:           "success",
		Channel:          "card",
		AmountMinorUnits: 500000,
		Currency:         "NGN",
		PayerEmail:       "buyer@example.com",
		PaidAt:           paidAt,
	}

	updated, err := orders.MarkPaid(ctx, "ref_100", state)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !updated {
		t.Fatalf("expected first transition to apply")
	}

	// The guard makes a second transition a no-op.
	updated, err = orders.MarkPaid(ctx, "ref_100", state)
	if err != nil {
		t.Fatalf("second mark paid: %v", err)
	}
	if updated {
		t.Fatalf("expected second transition to lose the guard")
	}

	order, err := orders.FindByReference(ctx, "ref_100")
	if err != nil {
		t.Fatalf("find by reference: %v", err)
	}
	if !order.IsPaid {
		t.Fatalf("expected paid order")
	}
	if order.ID != created.ID {
		t.Fatalf("expected order %q, got %q", created.ID, order.ID)
	}
	if order.Payment == nil || order.Payment.Status != "success" {
		t.Fatalf("expected payment snapshot, got %+v", order.Payment)
	}
	if order.PaidAt == nil || !order.PaidAt.Equal(paidAt) {
		t.Fatalf("expected paid_at %v, got %v", paidAt, order.PaidAt)
	}
}

func TestOrderStore_FindByReferenceNotFound(t *testing.T) {
	ctx := context.Background()
	orders, _, cleanup := newStores(t)
	defer cleanup()

	_, err := orders.FindByReference(ctx, "ref_missing")
	if err == nil {
		t.Fatalf("expected not-found error")
	}
	if core.TextCode(err) != core.PaymentErrorOrderNotFound {
		t.Fatalf("expected order-not-found code, got %q", core.TextCode(err))
	}
	if !core.IsRetryable(err) {
		t.Fatalf("expected not-found to be retryable")
	}
}

func TestOrderStore_SavePendingReference(t *testing.T) {
	ctx := context.Background()
	orders, _, cleanup := newStores(t)
	defer cleanup()

	created, err := orders.Create(ctx, core.Order{
		TotalAmountMinorUnits: 250000,
		Currency:              "NGN",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := orders.SavePendingReference(ctx, created.ID, "ref_init_1", "buyer@example.com"); err != nil {
		t.Fatalf("save pending reference: %v", err)
	}

	order, err := orders.FindByReference(ctx, "ref_init_1")
	if err != nil {
		t.Fatalf("find by new reference: %v", err)
	}
	if order.ID != created.ID {
		t.Fatalf("expected order %q, got %q", created.ID, order.ID)
	}
	if order.IsPaid {
		t.Fatalf("expected order to stay unpaid after initialization")
	}

	if err := orders.SavePendingReference(ctx, "ord_missing", "ref_other", ""); err == nil {
		t.Fatalf("expected error for unknown order id")
	}
}

func TestRetryTaskStore_EnqueueDeduplicatesLiveTasks(t *testing.T) {
	ctx := context.Background()
	_, tasks, cleanup := newStores(t)
	defer cleanup()

	next := time.Now().UTC().Add(time.Minute)
	first, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:     "ref_1",
		Kind:          core.TaskKindReplay,
		Payload:       []byte(`{"Reference":"ref_1"}`),
		MaxAttempts:   5,
		NextAttemptAt: &next,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.Status != core.TaskStatusPending {
		t.Fatalf("expected pending task, got %q", first.Status)
	}

	second, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:     "ref_1",
		Kind:          core.TaskKindReplay,
		MaxAttempts:   5,
		NextAttemptAt: &next,
	})
	if err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate enqueue to return live task %q, got %q", first.ID, second.ID)
	}

	// A verify task for the same reference is a distinct unit of work.
	verify, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:     "ref_1",
		Kind:          core.TaskKindVerify,
		MaxAttempts:   5,
		NextAttemptAt: &next,
	})
	if err != nil {
		t.Fatalf("enqueue verify: %v", err)
	}
	if verify.ID == first.ID {
		t.Fatalf("expected distinct task for verify kind")
	}
}

func TestRetryTaskStore_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	_, tasks, cleanup := newStores(t)
	defer cleanup()

	past := time.Now().UTC().Add(-time.Minute)
	task, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:     "ref_1",
		Kind:          core.TaskKindReplay,
		Payload:       []byte(`{"Reference":"ref_1"}`),
		MaxAttempts:   5,
		NextAttemptAt: &past,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := tasks.ClaimDue(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected one claimed task, got %d", len(claimed))
	}
	if claimed[0].Status != core.TaskStatusProcessing {
		t.Fatalf("expected processing status, got %q", claimed[0].Status)
	}
	if claimed[0].Attempts != 1 {
		t.Fatalf("expected claim to increment attempts, got %d", claimed[0].Attempts)
	}

	// A processing task stays invisible to further claims.
	again, err := tasks.ClaimDue(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no claimable tasks, got %d", len(again))
	}

	future := time.Now().UTC().Add(time.Hour)
	if err := tasks.Fail(ctx, task.ID, fmt.Errorf("order not visible yet"), future); err != nil {
		t.Fatalf("fail task: %v", err)
	}
	rescheduled, err := tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get rescheduled: %v", err)
	}
	if rescheduled.Status != core.TaskStatusRetryReady {
		t.Fatalf("expected retry-ready status, got %q", rescheduled.Status)
	}
	if rescheduled.LastError == "" {
		t.Fatalf("expected failure recorded on task")
	}

	// Not due yet.
	claimed, err = tasks.ClaimDue(ctx, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("claim before due: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("expected task to wait for its backoff, got %d", len(claimed))
	}

	claimed, err = tasks.ClaimDue(ctx, 10, future.Add(time.Second))
	if err != nil {
		t.Fatalf("claim after due: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Attempts != 2 {
		t.Fatalf("expected second attempt claim, got %+v", claimed)
	}

	if err := tasks.Complete(ctx, task.ID); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	done, err := tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get completed: %v", err)
	}
	if done.Status != core.TaskStatusProcessed {
		t.Fatalf("expected processed status, got %q", done.Status)
	}
}

func TestRetryTaskStore_ClaimOrdersByEffectiveDueTime(t *testing.T) {
	ctx := context.Background()
	_, tasks, cleanup := newStores(t)
	defer cleanup()

	// An overdue scheduled task must win over a younger unscheduled one;
	// NULL next_attempt_at falls back to created_at, which sorts the same
	// on sqlite and postgres.
	past := time.Now().UTC().Add(-10 * time.Minute)
	overdue, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:     "ref_overdue",
		Kind:          core.TaskKindReplay,
		MaxAttempts:   5,
		NextAttemptAt: &past,
	})
	if err != nil {
		t.Fatalf("enqueue overdue: %v", err)
	}
	unscheduled, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:   "ref_unscheduled",
		Kind:        core.TaskKindReplay,
		MaxAttempts: 5,
	})
	if err != nil {
		t.Fatalf("enqueue unscheduled: %v", err)
	}

	claimed, err := tasks.ClaimDue(ctx, 1, time.Now().UTC())
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != overdue.ID {
		t.Fatalf("expected overdue task claimed first, got %+v", claimed)
	}

	claimed, err = tasks.ClaimDue(ctx, 1, time.Now().UTC())
	if err != nil {
		t.Fatalf("claim due again: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != unscheduled.ID {
		t.Fatalf("expected unscheduled task claimed next, got %+v", claimed)
	}
}

func TestRetryTaskStore_DeadLetterAndRequeue(t *testing.T) {
	ctx := context.Background()
	_, tasks, cleanup := newStores(t)
	defer cleanup()

	past := time.Now().UTC().Add(-time.Minute)
	task, err := tasks.Enqueue(ctx, core.RetryTask{
		Reference:     "ref_dead",
		Kind:          core.TaskKindReplay,
		MaxAttempts:   5,
		NextAttemptAt: &past,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := tasks.ClaimDue(ctx, 10, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := tasks.Fail(ctx, task.ID, fmt.Errorf("exhausted"), time.Time{}); err != nil {
		t.Fatalf("dead-letter: %v", err)
	}
	dead, err := tasks.ListDead(ctx, 10)
	if err != nil {
		t.Fatalf("list dead: %v", err)
	}
	if len(dead) != 1 || dead[0].ID != task.ID {
		t.Fatalf("expected one dead task, got %+v", dead)
	}

	if err := tasks.Requeue(ctx, task.ID, time.Now().UTC()); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	requeued, err := tasks.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("get requeued: %v", err)
	}
	if requeued.Status != core.TaskStatusRetryReady {
		t.Fatalf("expected retry-ready after requeue, got %q", requeued.Status)
	}
	if requeued.Attempts != 0 {
		t.Fatalf("expected attempts reset on requeue, got %d", requeued.Attempts)
	}

	// Requeue applies to dead tasks only.
	if err := tasks.Requeue(ctx, task.ID, time.Now().UTC()); err == nil {
		t.Fatalf("expected requeue of live task to fail")
	}
}
