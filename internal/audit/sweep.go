package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often RunRetentionSweep re-scans every
// per-market set. Append already trims on every write; this sweep exists
// to catch markets whose MaxEntriesPerMarket shrank after entries were
// already written, or any set that missed a trim due to a failed pipe.
const DefaultSweepInterval = 5 * time.Minute

// RunRetentionSweep runs until ctx is cancelled, re-applying the
// retention trim to audit:global and every audit:market:* set on an
// interval. Intended to run as a tomb-supervised goroutine alongside the
// HTTP listener.
func (l *Log) RunRetentionSweep(ctx context.Context) error {
	ticker := time.NewTicker(DefaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.sweepOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("audit: retention sweep failed")
			}
		}
	}
}

func (l *Log) sweepOnce(ctx context.Context) error {
	if err := l.rdb.ZRemRangeByRank(ctx, globalKey, 0, -(defaultMaxGlobalEntries + 1)).Err(); err != nil {
		return err
	}

	if l.maxEntriesPerMarket <= 0 {
		return nil
	}
	iter := l.rdb.Scan(ctx, 0, marketKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := l.rdb.ZRemRangeByRank(ctx, key, 0, -(l.maxEntriesPerMarket + 1)).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
