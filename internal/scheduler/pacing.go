package scheduler

import "time"

// messageDelay draws the wait before the next send, uniform over
// [MinMessageDelay, MaxMessageDelay].
func (s *Scheduler) messageDelay() time.Duration {
	return s.randomDuration(s.config.MinMessageDelay, s.config.MaxMessageDelay)
}

// longPause draws the extended break taken between batches, uniform over
// [MinLongPause, MaxLongPause].
func (s *Scheduler) longPause() time.Duration {
	return s.randomDuration(s.config.MinLongPause, s.config.MaxLongPause)
}

// batchThreshold draws how many successful sends happen before the next
// extended pause, uniform over [MinBatchSize, MaxBatchSize]. Re-rolled after
// every pause so the cadence never settles into a fixed rhythm.
func (s *Scheduler) batchThreshold() int {
	if s.config.MaxBatchSize <= s.config.MinBatchSize {
		return s.config.MinBatchSize
	}
	return s.config.MinBatchSize + s.rng.Intn(s.config.MaxBatchSize-s.config.MinBatchSize+1)
}

func (s *Scheduler) randomDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)))
}
