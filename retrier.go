package tpms

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

var retrySleep = time.Second

type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

// retry keeps r running until ctx is done. Start returning nil restarts it
// on the same connection; an error closes and reopens it after retrySleep.
func retry(ctx context.Context, r Retryable) error {
	open := false
	defer func() {
		if open {
			if err := r.Close(); err != nil {
				log.WithField("err", err).Warnf("%s: unable to close", r.Name())
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !open {
			if err := r.Open(); err != nil {
				log.WithField("err", err).Errorf("%s: unable to open", r.Name())
				if !sleep(ctx, retrySleep) {
					return ctx.Err()
				}
				continue
			}
			open = true
		}

		err := r.Start(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			continue
		}

		log.WithField("err", err).Errorf("%s: reconnecting due to error", r.Name())
		open = false
		if err = r.Close(); err != nil {
			log.WithField("err", err).Warnf("%s: unable to close", r.Name())
		}
		if !sleep(ctx, retrySleep) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
