package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// stageTargetsP95MS are the latency budgets a healthy deployment should meet.
// Cloud speech dominates voice turns; everything else is in-process.
var stageTargetsP95MS = map[string]float64{
	"detect_language": 25,
	"score_sentiment": 25,
	"respond":         25,
	"transcribe":      3000,
	"synthesize":      4000,
	"turn_text":       150,
	"turn_voice":      8000,
}

// TurnStageStats summarizes one pipeline stage over the rolling window.
type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	OverTarget  bool    `json:"over_target,omitempty"`
}

// TurnIndicator counts a notable event such as a provider fallback or a
// degraded voice turn.
type TurnIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Indicators  []TurnIndicator  `json:"indicators,omitempty"`
}

// sampleRing keeps the most recent samples of one stage.
type sampleRing struct {
	values []float64
	next   int
	full   bool
}

func (r *sampleRing) push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.next == 0 {
		r.full = true
	}
}

func (r *sampleRing) last() float64 {
	i := r.next - 1
	if i < 0 {
		i = len(r.values) - 1
	}
	return r.values[i]
}

// sorted returns a sorted copy of the live samples.
func (r *sampleRing) sorted() []float64 {
	n := r.next
	if r.full {
		n = len(r.values)
	}
	out := append([]float64(nil), r.values[:n]...)
	sort.Float64s(out)
	return out
}

type turnStageWindow struct {
	mu         sync.Mutex
	size       int
	rings      map[string]*sampleRing
	indicators map[string]int
}

func newTurnStageWindow(size int) *turnStageWindow {
	if size <= 0 {
		size = 256
	}
	w := &turnStageWindow{size: size}
	w.clear()
	return w
}

func (w *turnStageWindow) clear() {
	w.rings = make(map[string]*sampleRing)
	w.indicators = make(map[string]int)
}

func (w *turnStageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ring := w.rings[stage]
	if ring == nil {
		ring = &sampleRing{values: make([]float64, w.size)}
		w.rings[stage] = ring
	}
	ring.push(ms)
}

func (w *turnStageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *turnStageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear()
}

// Snapshot returns stages and indicators sorted by name.
func (w *turnStageWindow) Snapshot() TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]TurnStageStats, 0, len(w.rings)),
	}
	for _, stage := range sortedKeys(w.rings) {
		snap.Stages = append(snap.Stages, summarize(stage, w.rings[stage]))
	}
	for _, name := range sortedKeys(w.indicators) {
		snap.Indicators = append(snap.Indicators, TurnIndicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

func summarize(stage string, ring *sampleRing) TurnStageStats {
	samples := ring.sorted()
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	stats := TurnStageStats{
		Stage:       stage,
		Samples:     len(samples),
		LastMS:      round2(ring.last()),
		AvgMS:       round2(sum / float64(len(samples))),
		P50MS:       round2(quantile(samples, 0.50)),
		P95MS:       round2(quantile(samples, 0.95)),
		P99MS:       round2(quantile(samples, 0.99)),
		TargetP95MS: stageTargetsP95MS[stage],
	}
	stats.OverTarget = stats.TargetP95MS > 0 && stats.P95MS > stats.TargetP95MS
	return stats
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(pos)), int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
