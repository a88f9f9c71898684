package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageItemDone    Stage = "ITEM_DONE"
	StageItemSkipped Stage = "ITEM_SKIPPED"
	StageItemFailed  Stage = "ITEM_FAILED"
	StageRunDone     Stage = "RUN_DONE"
	StageRunAborted  Stage = "RUN_ABORTED"
)

// Terminal reports whether the stage closes a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunAborted
}

// Item reports whether the stage describes a single work item.
func (s Stage) Item() bool {
	return s == StageItemDone || s == StageItemSkipped || s == StageItemFailed
}

// Event is one milestone of a collection run.
type Event struct {
	// RunID is the 16-byte UUID shared by every event of one run.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Step names the collection step: keyword, article or image.
	Step string
	// KeywordID is set on article and image item events.
	KeywordID int64
	// Subject is a human label: the keyword title or the category name.
	Subject string
	// Reason is a short machine-friendly cause for skips, failures and aborts.
	Reason string
	URL    string
	Dur    time.Duration
	Note   string
}

// Validate performs coarse validation.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Step == "" {
		return errors.New("step is required")
	}
	switch {
	case e.Stage == StageRunStart, e.Stage.Terminal():
	case e.Stage.Item():
		if e.KeywordID <= 0 && e.Subject == "" {
			return errors.New("item events require a keyword id or subject")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run id for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
