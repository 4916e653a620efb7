// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit enforces jittered cooldowns between consecutive search
// and download calls on a single fetcher instance. Randomized targets avoid
// a fixed request cadence that upstream sites could key on.
package ratelimit

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pdiddy/paper-fetch/pkg/types"
)

// progressThreshold is the minimum wait before the observer is notified.
var progressThreshold = 500 * time.Millisecond

// progressTick is the observer notification cadence. Tests shrink it.
var progressTick = 200 * time.Millisecond

// Limiter tracks the last search and download times of one fetcher and
// sleeps callers until a uniformly drawn target has elapsed. State is
// process-local and resets on restart.
//
// Elapsed time is measured from the start of the previous call to the
// start of the current one, not from call completion. Slow calls
// therefore shorten the observed gap; this matches the upstream contract.
type Limiter struct {
	mu           sync.Mutex
	searchWait   types.WaitRange
	downloadWait types.WaitRange
	lastSearch   time.Time
	lastDownload time.Time
	observer     func(string)

	// sleep and now are swappable for tests.
	sleep func(time.Duration)
	now   func() time.Time
}

// New returns a Limiter over the given cooldown ranges.
func New(cfg types.RateConfig) *Limiter {
	return &Limiter{
		searchWait:   cfg.SearchWait,
		downloadWait: cfg.DownloadWait,
		sleep:        time.Sleep,
		now:          time.Now,
	}
}

// SetProgressObserver registers a callback that receives human-readable
// countdown messages during waits longer than half a second, and an empty
// string when the wait completes. A nil observer disables reporting.
func (l *Limiter) SetProgressObserver(fn func(string)) {
	l.mu.Lock()
	l.observer = fn
	l.mu.Unlock()
}

// SearchWaitRange returns the configured (min, max) search cooldown in seconds.
func (l *Limiter) SearchWaitRange() (min, max float64) {
	return l.searchWait.Min, l.searchWait.Max
}

// DownloadWaitRange returns the configured (min, max) download cooldown in
// seconds, for callers estimating total wait across a batch.
func (l *Limiter) DownloadWaitRange() (min, max float64) {
	return l.downloadWait.Min, l.downloadWait.Max
}

// WaitBeforeSearch blocks until the jittered search cooldown has elapsed
// since the previous search started, then records the new start time. It
// never fails and never waits longer than the configured max.
func (l *Limiter) WaitBeforeSearch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSearch = l.waitLocked(l.searchWait, l.lastSearch)
}

// WaitBeforeDownload is WaitBeforeSearch over the download cooldown range.
func (l *Limiter) WaitBeforeDownload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastDownload = l.waitLocked(l.downloadWait, l.lastDownload)
}

// waitLocked sleeps out the remainder of a fresh uniform target and returns
// the new stamp. Callers hold mu: concurrent use of one fetcher instance
// serializes here, which keeps the timestamps race-free.
func (l *Limiter) waitLocked(r types.WaitRange, last time.Time) time.Time {
	target := secondsToDuration(r.Min + rand.Float64()*(r.Max-r.Min))

	if !last.IsZero() {
		if remaining := target - l.now().Sub(last); remaining > 0 {
			l.sleepWithProgress(remaining)
		}
	}
	return l.now()
}

// sleepWithProgress sleeps d, emitting countdown messages while more than
// the threshold remains.
func (l *Limiter) sleepWithProgress(d time.Duration) {
	if l.observer == nil || d < progressThreshold {
		l.sleep(d)
		return
	}

	deadline := l.now().Add(d)
	for {
		remaining := deadline.Sub(l.now())
		if remaining <= 0 {
			break
		}
		l.observer(countdownMessage(remaining))
		if remaining < progressTick {
			l.sleep(remaining)
			break
		}
		l.sleep(progressTick)
	}
	l.observer("")
}

func countdownMessage(remaining time.Duration) string {
	return fmt.Sprintf("waiting %ds", int(remaining.Seconds())+1)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
