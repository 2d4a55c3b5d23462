package gateway

import (
	"sync"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
)

// Default per-subject daily quotas by metered route class.
const (
	DefaultPlayQuota     = 200
	DefaultTTSQuota      = 500
	DefaultImageGenQuota = 50
)

// meter names the quota classes.
type meter string

const (
	meterPlay     meter = "play"
	meterTTS      meter = "tts"
	meterImageGen meter = "image_gen"
)

// quotaTracker counts metered calls per subject per UTC day. The decision is
// consulted before the orchestrator runs, so rejected calls cost nothing
// downstream.
type quotaTracker struct {
	limits map[meter]int
	now    func() time.Time

	mu     sync.Mutex
	day    string
	counts map[string]int
}

func newQuotaTracker(play, tts, imageGen int, now func() time.Time) *quotaTracker {
	if play <= 0 {
		play = DefaultPlayQuota
	}
	if tts <= 0 {
		tts = DefaultTTSQuota
	}
	if imageGen <= 0 {
		imageGen = DefaultImageGenQuota
	}
	return &quotaTracker{
		limits: map[meter]int{meterPlay: play, meterTTS: tts, meterImageGen: imageGen},
		now:    now,
		counts: make(map[string]int),
	}
}

// consume charges one call against the subject's daily budget for m.
func (q *quotaTracker) consume(subject string, m meter) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	day := q.now().UTC().Format("2006-01-02")
	if day != q.day {
		q.day = day
		q.counts = make(map[string]int)
	}

	key := subject + "/" + string(m)
	if q.counts[key] >= q.limits[m] {
		return fault.New(fault.QuotaExceeded, "gateway: daily %s quota exhausted", m).
			WithHint("quota resets at midnight utc")
	}
	q.counts[key]++
	return nil
}
