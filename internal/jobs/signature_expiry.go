// internal/jobs/signature_expiry.go
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coopcredito/solicitudes-backend/internal/models"
	"github.com/coopcredito/solicitudes-backend/internal/services"
)

// ExpiryChecker is the part of the signature process the sweep needs.
type ExpiryChecker interface {
	PendingIDs(ctx context.Context) ([]uuid.UUID, error)
	CheckExpiry(ctx context.Context, transactionID uuid.UUID, now time.Time) (*models.SignatureTransaction, error)
}

// SignatureExpiryJob periodically expires signature transactions whose
// deadline has passed.
type SignatureExpiryJob struct {
	checker  ExpiryChecker
	clock    services.Clock
	interval time.Duration
}

func NewSignatureExpiryJob(checker ExpiryChecker, clock services.Clock, interval time.Duration) *SignatureExpiryJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SignatureExpiryJob{
		checker:  checker,
		clock:    clock,
		interval: interval,
	}
}

// Start blocks until ctx is cancelled.
func (j *SignatureExpiryJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logrus.WithField("interval", j.interval).Info("Signature expiry job started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Stopping signature expiry job...")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce checks every pending transaction and returns how many expired.
func (j *SignatureExpiryJob) RunOnce(ctx context.Context) int {
	ids, err := j.checker.PendingIDs(ctx)
	if err != nil {
		logrus.WithError(err).Error("Signature expiry: failed to fetch pending transactions")
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	now := j.clock.Now()
	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		transaction, err := j.checker.CheckExpiry(ctx, id, now)
		if err != nil {
			// A concurrent signatory event may have finished it first
			logrus.WithError(err).WithField("transaction_id", id).Warn("Signature expiry: check failed")
			continue
		}
		if transaction.State == models.SignatureStateExpired {
			expired++
		}
	}

	if expired > 0 {
		logrus.WithFields(logrus.Fields{
			"checked": len(ids),
			"expired": expired,
		}).Info("Signature expiry sweep finished")
	}

	return expired
}
