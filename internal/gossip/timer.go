package gossip

import "time"

// Timer fires at a fixed cadence so the coordinator can publish its
// local block count on the "size" topic, mirroring
// original_source/src/gossip_timer.rs's ten-second sleep loop and the
// teacher's StartCheckpoint/StopCheckpoint ticker-goroutine pattern in
// pkg/bptree/bptree.go.
type Timer struct {
	ticker *time.Ticker
	done   chan struct{}
}

// StartTimer begins firing fn every interval on its own goroutine. Call
// Stop to end it.
func StartTimer(interval time.Duration, fn func()) *Timer {
	t := &Timer{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}

	go func() {
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()

	return t
}

// Stop ends the background goroutine. Safe to call once; a second call
// panics on the closed channel, matching the teacher's single-shot
// StopCheckpoint contract.
func (t *Timer) Stop() {
	t.ticker.Stop()
	close(t.done)
}
