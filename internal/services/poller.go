package services

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-esign/internal/lock"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"gorm.io/gorm"
)

// PollResult counts what one polling pass did.
type PollResult struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Poller refreshes the status of launched, unfinished signature requests.
// At most one refresh per order runs at a time across processes sharing the locker.
type Poller struct {
	db         *gorm.DB
	signatures *SignatureService
	locker     lock.Locker
	batch      int
	lockTTL    time.Duration
	log        logging.Logger
}

func NewPoller(db *gorm.DB, signatures *SignatureService, locker lock.Locker, batch int, lockTTL time.Duration) *Poller {
	if batch <= 0 {
		batch = 100
	}
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Poller{
		db:         db,
		signatures: signatures,
		locker:     locker,
		batch:      batch,
		lockTTL:    lockTTL,
		log:        logging.GetLogger("poller"),
	}
}

// RunOnce refreshes up to one batch of orders, oldest sent first. A failing
// order is logged and counted; it does not stop the pass.
func (p *Poller) RunOnce(ctx context.Context) (PollResult, error) {
	var res PollResult
	var ids []uint
	err := p.db.WithContext(ctx).Model(&models.SaleOrder{}).
		Where("signature_status = ? AND signature_sent_at IS NOT NULL", models.SignatureStatusSent).
		Order("signature_sent_at").
		Limit(p.batch).
		Pluck("id", &ids).Error
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		release, ok, err := p.locker.TryLock(ctx, fmt.Sprintf("order:%d", id), p.lockTTL)
		if err != nil {
			return res, fmt.Errorf("lock order %d: %w", id, err)
		}
		if !ok {
			res.Skipped++
			continue
		}
		res.Checked++
		order, err := p.signatures.RefreshStatus(ctx, id)
		release()
		if err != nil {
			res.Failed++
			p.log.Warn("refresh failed", "order_id", id, "error", err)
			continue
		}
		if order.Signature.Status != models.SignatureStatusSent {
			res.Changed++
		}
	}
	p.log.Info("poll pass done", "checked", res.Checked, "changed", res.Changed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}
