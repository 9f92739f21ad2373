// Package choreography follows AddTrack requests through their hops.
//
// A Tracker observes the ledger's transaction stream and derives, for every
// AddTrack operation, which phase of the protocol it is in. Phases advance
// only along the transition table; anything else is recorded as an error on
// the operation.
package choreography

import (
	"errors"
	"fmt"
)

// Phase is a step of the AddTrack protocol.
type Phase uint8

const (
	Validating Phase = iota
	AwaitingCollectionAck
	AwaitingTrackAck
	Settling
	Succeeded
	Failed
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case Validating:
		return "validating"
	case AwaitingCollectionAck:
		return "awaiting_collection_ack"
	case AwaitingTrackAck:
		return "awaiting_track_ack"
	case Settling:
		return "settling"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == Succeeded || p == Failed
}

// ErrIllegalTransition is recorded when an operation skips or reverses a
// phase.
var ErrIllegalTransition = errors.New("illegal phase transition")

var transitions = map[Phase][]Phase{
	Validating:            {AwaitingCollectionAck, AwaitingTrackAck, Settling, Failed},
	AwaitingCollectionAck: {AwaitingTrackAck, Settling, Failed},
	AwaitingTrackAck:      {Settling, Failed},
	Settling:              {Succeeded, Failed},
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
