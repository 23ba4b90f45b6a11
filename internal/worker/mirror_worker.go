// Package worker mirrors transaction events into the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"spndr/internal/amqp"
	"spndr/internal/core"
	"spndr/internal/log"
	"spndr/internal/sheets"
)

var ErrNilEvent = errors.New("nil event")

// MirrorWorker turns transaction events into mirror rows.
type MirrorWorker struct {
	mirror sheets.TransactionMirror
	now    func() time.Time
	logger *log.Logger
}

func NewMirrorWorker(mirror sheets.TransactionMirror, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		mirror: mirror,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent appends the row for one event. It is the amqp.Client.Consume
// handler; a returned error nacks the delivery.
func (w *MirrorWorker) HandleEvent(ctx context.Context, event *amqp.TransactionEvent) error {
	if event == nil {
		return ErrNilEvent
	}

	at := event.Timestamp
	if at.IsZero() {
		at = w.now()
	}

	var row sheets.Row
	switch event.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		if event.Transaction == nil {
			return fmt.Errorf("%s event without transaction", event.Type)
		}
		action := sheets.ActionCreated
		if event.Type == amqp.EventUpdated {
			action = sheets.ActionUpdated
		}
		row = sheets.TransactionRow(action, *event.Transaction, at)
	case amqp.EventDeleted:
		if event.TransactionID == "" {
			return fmt.Errorf("%s event without transaction id", event.Type)
		}
		row = sheets.TombstoneRow(sheets.ActionDeleted, event.TransactionID, at)
	case amqp.EventCleared:
		row = sheets.TombstoneRow(sheets.ActionCleared, "", at)
		row.Title = strconv.FormatInt(event.Count, 10)
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	ref, err := w.mirror.AppendRow(ctx, row)
	if err != nil {
		w.logger.Failure(ctx, "Failed to mirror event", log.OpMirror, err,
			log.FieldType, string(event.Type),
			log.FieldTransactionID, row.ID)
		return fmt.Errorf("mirror %s: %w", event.Type, err)
	}

	w.logger.InfoContext(ctx, "Mirrored event",
		log.FieldOperation, log.OpMirror,
		log.FieldType, string(event.Type),
		log.FieldTransactionID, row.ID,
		"row_ref", ref)
	return nil
}

// Reconcile appends a created row for every transaction the mirror is
// missing. It recovers from events lost while the worker was down.
func (w *MirrorWorker) Reconcile(ctx context.Context, lister sheets.RowLister, txs []core.Transaction) (int, error) {
	rows, err := lister.ListRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("list mirror rows: %w", err)
	}
	live := sheets.LiveRows(rows)

	added, failed := 0, 0
	at := w.now()
	for _, tx := range txs {
		if _, ok := live[tx.ID]; ok {
			continue
		}
		if _, err := w.mirror.AppendRow(ctx, sheets.TransactionRow(sheets.ActionCreated, tx, at)); err != nil {
			w.logger.Failure(ctx, "Failed to reconcile transaction", log.OpMirror, err,
				log.FieldTransactionID, tx.ID)
			failed++
			continue
		}
		added++
	}

	w.logger.InfoContext(ctx, "Mirror reconciled",
		log.FieldOperation, log.OpStartup,
		"total", len(txs),
		"added", added,
		"errors", failed)
	if failed > 0 {
		return added, fmt.Errorf("reconcile: %d transactions not mirrored", failed)
	}
	return added, nil
}
