package extraction

import (
	"context"
	"time"

	"agro-intake-be/internal/pkg/logger"
	"agro-intake-be/pkg/extraction/cache"
	"agro-intake-be/pkg/extraction/matcher"
	"agro-intake-be/pkg/questionnaire"
)

const logModule = "ExtractionOrchestrator"

// DefaultProgressInterval is how often a background run reports simulated progress.
const DefaultProgressInterval = 800 * time.Millisecond

// Patch is the result of one batch (or of a cache hit) ready for the form.
// Batch is 0 for a cache hit and 1-based otherwise; Batches is the run's batch count.
type Patch struct {
	Batch         int
	Batches       int
	Values        map[string]questionnaire.Value
	AutoCompleted []string
	Failed        bool
}

// Progress describes a background run in flight.
type Progress struct {
	BatchesDone  int
	BatchesTotal int
	Fields       int
	// Percent is a smoothed estimate that creeps forward between batch completions.
	Percent int
}

// Outcome summarises a whole orchestration run once its last batch has resolved.
type Outcome struct {
	Batches       int
	FailedBatches int
	AutoCompleted []string
	FromCache     bool
}

// Listener receives the results of a run. Calls for one run never overlap and arrive
// in this order: the foreground patch, then per background batch its patch and progress,
// interleaved with ticker progress, and finally OnComplete for multi-batch runs.
type Listener interface {
	OnPatch(p Patch)
	OnProgress(p Progress)
	OnComplete(o Outcome)
}

// Input is the snapshot a run works from.
type Input struct {
	Narration string
	Form      questionnaire.FormState
	Statuses  questionnaire.Statuses
	// Background bounds the asynchronous batches. It outlives the caller's request.
	Background context.Context
}

// Result is what the caller gets back once the foreground work is done.
type Result struct {
	FromCache     bool
	Batches       int
	Values        map[string]questionnaire.Value
	AutoCompleted []string
	Failed        bool

	done chan struct{}
}

// Pending reports whether background batches are still running.
func (r *Result) Pending() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Done is closed once every batch of the run has resolved.
func (r *Result) Done() <-chan struct{} { return r.done }

// Orchestrator splits narrations into batched extraction calls, caches the merged
// result and reports patches in batch order.
type Orchestrator struct {
	index     *questionnaire.Index
	extractor Extractor
	cache     *cache.Cache
	logger    logger.ILogger

	batchSize        int
	progressInterval time.Duration
}

type Option func(*Orchestrator)

func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithProgressInterval sets the ticker period; <= 0 disables ticker progress.
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.progressInterval = d
	}
}

func NewOrchestrator(index *questionnaire.Index, extractor Extractor, c *cache.Cache, log logger.ILogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		index:            index,
		extractor:        extractor,
		cache:            c,
		logger:           log,
		batchSize:        DefaultBatchSize,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run extracts answers for in.Narration. The first batch (or the cache hit) is
// processed before Run returns; remaining batches continue in the background, one at
// a time, until the last one resolves or in.Background is cancelled.
func (o *Orchestrator) Run(ctx context.Context, in Input, l Listener) *Result {
	res := &Result{done: make(chan struct{})}

	eligible := o.eligibleQuestions(in.Statuses)

	if entry := o.cache.Get(ctx, in.Narration); entry != nil && len(entry.Data) > 0 {
		patch := o.patchFromCache(entry, eligible)
		res.FromCache = true
		res.Values = patch.Values
		res.AutoCompleted = patch.AutoCompleted
		o.logger.Info(logModule, "Cache hit, skipping remote extraction", map[string]interface{}{
			"key":    cache.Key(in.Narration),
			"fields": len(patch.AutoCompleted),
		})
		l.OnPatch(patch)
		close(res.done)
		return res
	}

	var pending []questionnaire.Question
	for _, q := range eligible {
		if questionnaire.IsEmpty(in.Form.Get(q.ID)) {
			pending = append(pending, q)
		}
	}

	batches := SplitBatches(pending, o.batchSize)
	res.Batches = len(batches)
	if len(batches) == 0 {
		res.Values = map[string]questionnaire.Value{}
		close(res.done)
		return res
	}

	acc := newAccumulator()

	first := o.runBatch(ctx, in.Narration, 1, batches[0])
	first.patch.Batches = len(batches)
	acc.add(first)
	res.Values = first.patch.Values
	res.AutoCompleted = first.patch.AutoCompleted
	res.Failed = first.err != nil
	l.OnPatch(first.patch)

	if len(batches) == 1 {
		o.persist(ctx, in.Narration, acc)
		close(res.done)
		return res
	}

	bg := in.Background
	if bg == nil {
		bg = context.WithoutCancel(ctx)
	}
	go o.runBackground(bg, in.Narration, batches, acc, l, res.done)

	return res
}

func (o *Orchestrator) runBackground(ctx context.Context, narration string, batches [][]questionnaire.Question, acc *accumulator, l Listener, done chan struct{}) {
	defer close(done)

	total := len(batches)
	est := newEstimator(total)
	est.batchDone(1)

	var tick <-chan time.Time
	if o.progressInterval > 0 {
		ticker := time.NewTicker(o.progressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 1; i < total; i++ {
		num := i + 1
		if err := ctx.Err(); err != nil {
			o.logger.Warn(logModule, "Background extraction stopped", map[string]interface{}{
				"batch":   num,
				"batches": total,
				"reason":  err.Error(),
			})
			return
		}

		resCh := make(chan batchResult, 1)
		go func(batch []questionnaire.Question) {
			resCh <- o.runBatch(ctx, narration, num, batch)
		}(batches[i])

	wait:
		for {
			select {
			case r := <-resCh:
				r.patch.Batches = total
				acc.add(r)
				l.OnPatch(r.patch)
				est.batchDone(num)
				l.OnProgress(Progress{
					BatchesDone:  num,
					BatchesTotal: total,
					Fields:       len(acc.autoCompleted),
					Percent:      est.percent(),
				})
				break wait
			case <-tick:
				est.tick()
				l.OnProgress(Progress{
					BatchesDone:  num - 1,
					BatchesTotal: total,
					Fields:       len(acc.autoCompleted),
					Percent:      est.percent(),
				})
			case <-ctx.Done():
				o.logger.Warn(logModule, "Background extraction stopped", map[string]interface{}{
					"batch":   num,
					"batches": total,
					"reason":  ctx.Err().Error(),
				})
				return
			}
		}
	}

	o.persist(ctx, narration, acc)
	l.OnComplete(Outcome{
		Batches:       total,
		FailedBatches: acc.failed,
		AutoCompleted: append([]string(nil), acc.autoCompleted...),
	})
}

type batchResult struct {
	patch Patch
	raw   map[string]questionnaire.Value
	err   error
}

func (o *Orchestrator) runBatch(ctx context.Context, narration string, num int, batch []questionnaire.Question) batchResult {
	res := batchResult{
		patch: Patch{Batch: num, Values: map[string]questionnaire.Value{}},
		raw:   map[string]questionnaire.Value{},
	}

	start := time.Now()
	resp, err := o.extractor.Extract(ctx, Request{
		Narration:       narration,
		QuestionPrompts: Prompts(batch),
	})
	if err == nil && (resp == nil || resp.Data == nil) {
		err = ErrMalformedResponse
	}
	if err != nil {
		o.logger.Error(logModule, "Extraction batch failed, counting zero fields", map[string]interface{}{
			"batch":     num,
			"questions": len(batch),
			"error":     err.Error(),
		})
		res.err = err
		res.patch.Failed = true
		return res
	}

	for _, q := range batch {
		rawAny, ok := lookup(resp.Data, q)
		if !ok {
			continue
		}
		raw := questionnaire.ValueOf(rawAny)
		if questionnaire.IsEmpty(raw) {
			continue
		}
		res.raw[q.ID] = raw
		res.patch.Values[q.ID] = matcher.Resolve(q, raw)
		res.patch.AutoCompleted = append(res.patch.AutoCompleted, q.ID)
	}

	o.logger.Debug(logModule, "Extraction batch resolved", map[string]interface{}{
		"batch":       num,
		"questions":   len(batch),
		"fields":      len(res.patch.AutoCompleted),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return res
}

func (o *Orchestrator) eligibleQuestions(statuses questionnaire.Statuses) []questionnaire.Question {
	var out []questionnaire.Question
	for _, q := range o.index.Questions() {
		if o.index.Eligible(q, statuses) {
			out = append(out, q)
		}
	}
	return out
}

// patchFromCache re-resolves cached raw values, dropping questions that are unknown or
// belong to sections marked not applicable since the entry was written.
func (o *Orchestrator) patchFromCache(entry *cache.Entry, eligible []questionnaire.Question) Patch {
	patch := Patch{Batch: 0, Values: map[string]questionnaire.Value{}}
	allowed := make(map[string]questionnaire.Question, len(eligible))
	for _, q := range eligible {
		allowed[q.ID] = q
	}

	for _, q := range eligible {
		raw, ok := entry.Data[q.ID]
		if !ok || questionnaire.IsEmpty(raw) {
			continue
		}
		patch.Values[q.ID] = matcher.Resolve(q, raw)
	}
	for _, id := range entry.AutoCompletedFields {
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, ok := patch.Values[id]; ok {
			patch.AutoCompleted = append(patch.AutoCompleted, id)
		}
	}
	return patch
}

func (o *Orchestrator) persist(ctx context.Context, narration string, acc *accumulator) {
	if len(acc.raw) == 0 {
		return
	}
	o.cache.Put(context.WithoutCancel(ctx), narration, cache.Entry{
		Data:                acc.raw,
		AutoCompletedFields: acc.autoCompleted,
	})
}

// accumulator merges batch results in batch order; later batches win per field.
type accumulator struct {
	raw           map[string]questionnaire.Value
	autoCompleted []string
	seen          map[string]struct{}
	failed        int
}

func newAccumulator() *accumulator {
	return &accumulator{
		raw:  map[string]questionnaire.Value{},
		seen: map[string]struct{}{},
	}
}

func (a *accumulator) add(r batchResult) {
	if r.err != nil {
		a.failed++
	}
	for id, v := range r.raw {
		a.raw[id] = v
	}
	for _, id := range r.patch.AutoCompleted {
		if _, dup := a.seen[id]; dup {
			continue
		}
		a.seen[id] = struct{}{}
		a.autoCompleted = append(a.autoCompleted, id)
	}
}

// estimator produces the simulated percentage shown while batches are in flight.
// It never reaches the next batch boundary before that batch actually resolves.
type estimator struct {
	total int
	done  int
	pct   float64
}

func newEstimator(total int) *estimator {
	return &estimator{total: total}
}

func (e *estimator) boundary(n int) float64 {
	return float64(n) / float64(e.total) * 100
}

func (e *estimator) batchDone(n int) {
	e.done = n
	e.pct = e.boundary(n)
}

func (e *estimator) tick() {
	if e.done >= e.total {
		return
	}
	step := e.boundary(1) / 5
	ceiling := e.boundary(e.done+1) - 1
	e.pct += step
	if e.pct > ceiling {
		e.pct = ceiling
	}
}

func (e *estimator) percent() int {
	return int(e.pct)
}
