package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spndr/internal/amqp"
	"spndr/internal/core"
	"spndr/internal/sheets"
	"spndr/internal/sheets/memory"
)

type failingMirror struct{}

func (failingMirror) AppendRow(context.Context, sheets.Row) (string, error) {
	return "", errors.New("quota exceeded")
}

func testTx(id, title string) core.Transaction {
	return core.Transaction{
		ID:       id,
		UserID:   "user_1",
		Title:    title,
		Amount:   decimal.RequireFromString("12.5"),
		Category: "Food",
		Type:     core.Expense,
		Date:     core.NewDate(2024, 5, 1),
	}
}

func TestHandleEvent_Sequence(t *testing.T) {
	store := memory.New()
	w := NewMirrorWorker(store, nil)
	ctx := context.Background()

	a, b := testTx("1", "Lunch"), testTx("2", "Dinner")
	updated := a
	updated.Title = "Brunch"

	events := []*amqp.TransactionEvent{
		amqp.NewCreatedEvent(a),
		amqp.NewCreatedEvent(b),
		amqp.NewUpdatedEvent(updated),
		amqp.NewDeletedEvent("2"),
	}
	for _, e := range events {
		if err := w.HandleEvent(ctx, e); err != nil {
			t.Fatalf("HandleEvent(%s): %v", e.Type, err)
		}
	}

	rows, _ := store.ListRows(ctx)
	wantActions := []sheets.Action{sheets.ActionCreated, sheets.ActionCreated, sheets.ActionUpdated, sheets.ActionDeleted}
	if len(rows) != len(wantActions) {
		t.Fatalf("got %d rows, want %d", len(rows), len(wantActions))
	}
	for i, want := range wantActions {
		if rows[i].Action != want {
			t.Errorf("row %d action = %s, want %s", i, rows[i].Action, want)
		}
	}
	if rows[0].Amount != "12.50" || rows[0].Date != "2024-05-01" || rows[0].Type != "expense" {
		t.Errorf("created row = %+v", rows[0])
	}

	live := store.Live()
	if len(live) != 1 || live["1"].Title != "Brunch" {
		t.Fatalf("live = %+v", live)
	}

	if err := w.HandleEvent(ctx, amqp.NewClearedEvent(1)); err != nil {
		t.Fatal(err)
	}
	if len(store.Live()) != 0 {
		t.Fatalf("live after clear = %+v", store.Live())
	}
	rows, _ = store.ListRows(ctx)
	if last := rows[len(rows)-1]; !last.IsTombstone() || last.Title != "1" {
		t.Errorf("clear row = %+v", last)
	}
}

func TestHandleEvent_ZeroTimestampUsesClock(t *testing.T) {
	store := memory.New()
	w := NewMirrorWorker(store, nil)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if err := w.HandleEvent(context.Background(), &amqp.TransactionEvent{Type: amqp.EventDeleted, TransactionID: "7"}); err != nil {
		t.Fatal(err)
	}
	rows, _ := store.ListRows(context.Background())
	if !rows[0].RecordedAt.Equal(fixed) || rows[0].Date != "2024-06-01" {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestHandleEvent_Rejects(t *testing.T) {
	w := NewMirrorWorker(memory.New(), nil)

	tests := []struct {
		name  string
		event *amqp.TransactionEvent
	}{
		{"nil event", nil},
		{"created without transaction", &amqp.TransactionEvent{Type: amqp.EventCreated}},
		{"deleted without id", &amqp.TransactionEvent{Type: amqp.EventDeleted}},
		{"unknown type", &amqp.TransactionEvent{Type: "transaction.moved"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.HandleEvent(context.Background(), tt.event); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestHandleEvent_MirrorFailure(t *testing.T) {
	w := NewMirrorWorker(failingMirror{}, nil)
	err := w.HandleEvent(context.Background(), amqp.NewDeletedEvent("3"))
	if err == nil || err.Error() != "mirror transaction.deleted: quota exceeded" {
		t.Fatalf("err = %v", err)
	}
}

func TestReconcile(t *testing.T) {
	store := memory.New()
	w := NewMirrorWorker(store, nil)
	ctx := context.Background()

	if err := w.HandleEvent(ctx, amqp.NewCreatedEvent(testTx("1", "Lunch"))); err != nil {
		t.Fatal(err)
	}

	added, err := w.Reconcile(ctx, store, []core.Transaction{testTx("1", "Lunch"), testTx("2", "Dinner"), testTx("3", "Taxi")})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	if live := store.Live(); len(live) != 3 {
		t.Fatalf("live = %+v", live)
	}

	added, err = w.Reconcile(ctx, store, []core.Transaction{testTx("1", "Lunch")})
	if err != nil || added != 0 {
		t.Fatalf("second Reconcile = %d, %v", added, err)
	}
}

func TestReconcile_AppendFailure(t *testing.T) {
	w := NewMirrorWorker(failingMirror{}, nil)
	added, err := w.Reconcile(context.Background(), memory.New(), []core.Transaction{testTx("1", "Lunch")})
	if err == nil || added != 0 {
		t.Fatalf("Reconcile = %d, %v", added, err)
	}
}
