package progress

import (
	"time"
)

// Recorder stamps events for one run of one step. A Recorder over a nil
// Emitter discards everything, so collectors can report unconditionally.
type Recorder struct {
	emitter Emitter
	now     func() time.Time
	runID   [16]byte
	step    string
	started time.Time
}

// NewRecorder starts reporting for step under runID. now may be nil.
func NewRecorder(emitter Emitter, step string, runID [16]byte, now func() time.Time) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{emitter: emitter, now: now, runID: runID, step: step}
}

// RunID returns the run identifier.
func (r *Recorder) RunID() [16]byte { return r.runID }

// Start marks the beginning of the run.
func (r *Recorder) Start() {
	r.started = r.now()
	r.emit(Event{Stage: StageRunStart, TS: r.started})
}

// Done reports a successfully processed item.
func (r *Recorder) Done(keywordID int64, subject, url string, dur time.Duration) {
	r.emit(Event{Stage: StageItemDone, KeywordID: keywordID, Subject: subject, URL: url, Dur: dur})
}

// Skipped reports an item that was retired or passed over.
func (r *Recorder) Skipped(keywordID int64, subject, reason string) {
	r.emit(Event{Stage: StageItemSkipped, KeywordID: keywordID, Subject: subject, Reason: reason})
}

// Failed reports an item whose processing failed.
func (r *Recorder) Failed(keywordID int64, subject, reason string, err error) {
	evt := Event{Stage: StageItemFailed, KeywordID: keywordID, Subject: subject, Reason: reason}
	if err != nil {
		evt.Note = err.Error()
	}
	r.emit(evt)
}

// Finish closes the run. A non-empty abortReason records it as aborted.
func (r *Recorder) Finish(abortReason string, note string) {
	evt := Event{Stage: StageRunDone, Note: note}
	if abortReason != "" {
		evt.Stage = StageRunAborted
		evt.Reason = abortReason
	}
	if !r.started.IsZero() {
		evt.Dur = r.now().Sub(r.started)
	}
	r.emit(evt)
}

func (r *Recorder) emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.Step = r.step
	if evt.TS.IsZero() {
		evt.TS = r.now()
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	r.emitter.Emit(evt)
}
