package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/store"
)

const (
	// xpPerMinute is the experience earned per practice minute.
	xpPerMinute = 20
	// levelStep is the cumulative XP required per level; level is
	// recomputed as xp/levelStep+1.
	levelStep = 1000
)

// Ledger converts session durations into persisted participation
// statistics: speak time, experience, level and the daily activity row.
type Ledger struct {
	st  store.LedgerStore
	log *zerolog.Logger
	now func() time.Time
}

// NewLedger constructs a presence ledger over the given store.
func NewLedger(st store.LedgerStore, logger *zerolog.Logger) *Ledger {
	return &Ledger{st: st, log: logger, now: time.Now}
}

// Accrue credits one completed session. Duration is floored to whole
// minutes but never below one minute for any positive duration: a
// participant who connects and immediately disconnects still earns
// minimum credit. All effects land in a single store transaction. A
// failed write is retried once and then dropped with an error log;
// losing accrual data is an accepted degradation, it must never block
// the leave transition.
func (l *Ledger) Accrue(ctx context.Context, userID int64, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	minutes := int(duration / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	accrual := store.Accrual{
		UserID:    userID,
		Day:       l.now().UTC().Format("2006-01-02"),
		Minutes:   minutes,
		XP:        minutes * xpPerMinute,
		LevelStep: levelStep,
	}

	err := l.st.AccrueActivity(ctx, accrual)
	if err != nil {
		l.log.Warn().Err(err).Int64("user_id", userID).Msg("accrual write failed, retrying")
		err = l.st.AccrueActivity(ctx, accrual)
	}
	if err != nil {
		l.log.Error().Err(err).Int64("user_id", userID).Int("minutes", minutes).
			Msg("accrual lost after retry")
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	l.log.Debug().Int64("user_id", userID).Int("minutes", minutes).Int("xp", accrual.XP).
		Msg("activity accrued")
	return nil
}
