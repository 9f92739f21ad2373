package choreography

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/protocol"
)

// DefaultHistory is how many finished operations a Tracker remembers.
const DefaultHistory = 1024

// Transition is one recorded phase change.
type Transition struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	Op   string    `json:"op"`
	LT   uint64    `json:"lt"`
	At   time.Time `json:"at"`
}

// Record is the derived state of one AddTrack operation.
type Record struct {
	Operation   uuid.UUID    `json:"operation"`
	Phase       Phase        `json:"phase"`
	Transitions []Transition `json:"transitions"`
	Reason      string       `json:"reason,omitempty"`
	Error       string       `json:"error,omitempty"`
	Done        bool         `json:"done"`
}

// Tracker derives operation phases from the transaction stream. It
// implements core.Observer and core.OperationObserver.
type Tracker struct {
	mu       sync.Mutex
	records  map[uuid.UUID]*Record
	finished []uuid.UUID
	history  int
	log      *zap.Logger
}

// NewTracker creates a Tracker that remembers up to history finished
// operations.
func NewTracker(history int, log *zap.Logger) *Tracker {
	if history <= 0 {
		history = DefaultHistory
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		records: make(map[uuid.UUID]*Record),
		history: history,
		log:     log,
	}
}

// OnOperationStart implements core.OperationObserver.
func (t *Tracker) OnOperationStart(op *core.Operation) {
	if op.Op != (protocol.AddTrack{}).OpName() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[op.ID] = &Record{Operation: op.ID, Phase: Validating}
}

// OnTransaction implements core.Observer.
func (t *Tracker) OnTransaction(tx *core.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[tx.Operation]
	if !ok || rec.Phase.Terminal() {
		return
	}
	to, reason, changed := next(rec.Phase, tx)
	if !changed {
		return
	}
	if err := checkTransition(rec.Phase, to); err != nil {
		rec.Error = err.Error()
		t.log.Error("choreography violated", zap.String("query_id", tx.Operation.String()), zap.Error(err))
		return
	}
	rec.Transitions = append(rec.Transitions, Transition{From: rec.Phase, To: to, Op: tx.Op, LT: tx.LT, At: tx.FinishedAt})
	rec.Phase = to
	if reason != "" {
		rec.Reason = reason
	}
}

// OnOperationDone implements core.OperationObserver. An operation that
// settles before reaching a terminal phase has stalled and is failed.
func (t *Tracker) OnOperationDone(op *core.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[op.ID]
	if !ok {
		return
	}
	if !rec.Phase.Terminal() {
		rec.Transitions = append(rec.Transitions, Transition{From: rec.Phase, To: Failed, At: time.Now()})
		rec.Reason = "stalled in " + rec.Phase.String()
		rec.Phase = Failed
	}
	rec.Done = true

	t.finished = append(t.finished, op.ID)
	for len(t.finished) > t.history {
		delete(t.records, t.finished[0])
		t.finished = t.finished[1:]
	}
}

// Get returns a copy of the record of operation id.
func (t *Tracker) Get(id uuid.UUID) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	out := *rec
	out.Transitions = append([]Transition(nil), rec.Transitions...)
	return out, true
}

// Counts returns how many remembered operations are in each phase.
func (t *Tracker) Counts() map[Phase]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Phase]int)
	for _, rec := range t.records {
		out[rec.Phase]++
	}
	return out
}

// next derives the phase a transaction moves an operation to.
func next(cur Phase, tx *core.Transaction) (Phase, string, bool) {
	if tx.Bounced {
		switch tx.Op {
		case "AddTrack":
			return Failed, "request bounced", true
		case "CreateOrNotify", "CreateOrRegister":
			if tx.Success {
				return Settling, tx.Op + " bounced", true
			}
			return Failed, tx.Op + " bounced", true
		}
		return cur, "", false
	}

	if !tx.Success {
		// A failure that bounces is resolved by the bounce's own transaction.
		for _, o := range tx.Out {
			if o.Bounced {
				return cur, "", false
			}
		}
		if tx.Op == "AddTrack" {
			return Failed, tx.Error, true
		}
		return cur, "", false
	}

	switch tx.Op {
	case "AddTrack", "CollectionAck":
		switch {
		case sends(tx, "CreateOrNotify"):
			return AwaitingCollectionAck, "", true
		case sends(tx, "CreateOrRegister"):
			return AwaitingTrackAck, "", true
		case sends(tx, "Excesses"):
			return Settling, "", true
		}
	case "TrackAck":
		return Settling, "", true
	case "Excesses":
		ex, ok := tx.Body.(protocol.Excesses)
		if !ok {
			return cur, "", false
		}
		if ex.Outcome == protocol.OutcomeSucceeded {
			return Succeeded, "", true
		}
		return Failed, ex.Reason, true
	}
	return cur, "", false
}

func sends(tx *core.Transaction, op string) bool {
	for _, o := range tx.Out {
		if o.Op == op {
			return true
		}
	}
	return false
}
