// Package journal appends terminal challenge outcomes to an external store for
// match-history consumers. Nothing is read back; lobby state is not restored
// from it.
package journal

import (
	"context"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/challenge"
	"go.uber.org/zap"
)

const maxBatch = 32

type Record struct {
	ID          uint   `gorm:"primaryKey"`
	SessionUser string `gorm:"index;not null"`
	OfferID     string `gorm:"index;not null"`
	CallerID    string `gorm:"not null"`
	CalleeID    string `gorm:"not null"`
	State       string `gorm:"not null"`
	Responder   string
	Origin      string
	OfferedAt   time.Time
	ResolvedAt  time.Time
}

func (Record) TableName() string { return "challenge_outcomes" }

func FromOffer(sessionUser string, o challenge.Offer) Record {
	return Record{
		SessionUser: sessionUser,
		OfferID:     o.ID,
		CallerID:    o.CallerID,
		CalleeID:    o.CalleeID,
		State:       string(o.State),
		Responder:   o.Responder,
		Origin:      string(o.Origin),
		OfferedAt:   o.CreatedAt,
		ResolvedAt:  o.ResolvedAt,
	}
}

type Store interface {
	Save(ctx context.Context, recs []Record) error
}

// Writer buffers outcomes and flushes them to a Store from its own goroutine,
// so recording never blocks the caller.
type Writer struct {
	store Store
	in    chan Record
	log   *zap.Logger
}

func NewWriter(store Store, size int, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{store: store, in: make(chan Record, size), log: log}
}

// Record enqueues a terminal offer. Non-terminal offers are ignored.
func (w *Writer) Record(sessionUser string, o challenge.Offer) {
	if !o.State.Terminal() {
		return
	}
	select {
	case w.in <- FromOffer(sessionUser, o):
	default:
		w.log.Warn("journal buffer full, dropping outcome",
			zap.String("offer_id", o.ID),
			zap.String("state", string(o.State)))
	}
}

// Run flushes until ctx is cancelled, then drains what is already buffered.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case rec := <-w.in:
			w.flush(ctx, w.batch(rec))
		}
	}
}

func (w *Writer) batch(first Record) []Record {
	recs := []Record{first}
	for len(recs) < maxBatch {
		select {
		case rec := <-w.in:
			recs = append(recs, rec)
		default:
			return recs
		}
	}
	return recs
}

func (w *Writer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-w.in:
			w.flush(ctx, w.batch(rec))
		default:
			return
		}
	}
}

func (w *Writer) flush(ctx context.Context, recs []Record) {
	if err := w.store.Save(ctx, recs); err != nil {
		w.log.Error("journal save failed", zap.Int("records", len(recs)), zap.Error(err))
		return
	}
	w.log.Debug("journal saved", zap.Int("records", len(recs)))
}
