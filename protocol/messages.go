package protocol

import (
	"fmt"

	"github.com/najoast/catalog/ledger"
)

// Op codes of every message the catalog actors exchange.
const (
	OpDeploy           uint32 = 0x946a98b6
	OpDeployOk         uint32 = 0xaff90f57
	OpExcesses         uint32 = 0xd53276db
	OpAddTrack         uint32 = 0x6c7a1d01
	OpCreateOrNotify   uint32 = 0x6c7a1d02
	OpCollectionAck    uint32 = 0x6c7a1d03
	OpCreateOrRegister uint32 = 0x6c7a1d04
	OpTrackAck         uint32 = 0x6c7a1d05
	OpRegisterTrack    uint32 = 0x6c7a1d06
)

// Deploy asks a freshly deployed actor to confirm it is alive.
type Deploy struct {
	QueryID uint64 `json:"query_id"`
}

func (Deploy) OpCode() uint32 { return OpDeploy }
func (Deploy) OpName() string { return "Deploy" }

// DeployOk answers Deploy and returns the unspent value.
type DeployOk struct {
	QueryID uint64 `json:"query_id"`
}

func (DeployOk) OpCode() uint32 { return OpDeployOk }
func (DeployOk) OpName() string { return "DeployOk" }

// AddTrack is the public request to register a track, optionally inside a
// collection.
type AddTrack struct {
	QueryID    uint64  `json:"query_id"`
	Title      string  `json:"title"`
	Collection *string `json:"collection,omitempty"`
}

func (AddTrack) OpCode() uint32 { return OpAddTrack }
func (AddTrack) OpName() string { return "AddTrack" }

// CreateOrNotify is sent by the catalog to a collection. It deploys the
// collection when it does not exist yet.
type CreateOrNotify struct {
	QueryID    uint64         `json:"query_id"`
	Title      string         `json:"title"`
	Owner      ledger.Address `json:"owner"`
	TrackTitle string         `json:"track_title"`
	Track      ledger.Address `json:"track"`
}

func (CreateOrNotify) OpCode() uint32 { return OpCreateOrNotify }
func (CreateOrNotify) OpName() string { return "CreateOrNotify" }

// CollectionAck answers CreateOrNotify.
type CollectionAck struct {
	QueryID uint64 `json:"query_id"`

	// Created is set when this request instantiated the collection.
	Created bool `json:"created"`

	// TrackListed is set when the collection already lists the track.
	TrackListed bool `json:"track_listed"`

	Title      string         `json:"title"`
	Owner      ledger.Address `json:"owner"`
	TrackTitle string         `json:"track_title"`
}

func (CollectionAck) OpCode() uint32 { return OpCollectionAck }
func (CollectionAck) OpName() string { return "CollectionAck" }

// CreateOrRegister is sent by the catalog to a track. It deploys the track
// when it does not exist yet.
type CreateOrRegister struct {
	QueryID    uint64          `json:"query_id"`
	Title      string          `json:"title"`
	Collection *ledger.Address `json:"collection,omitempty"`
	Owner      ledger.Address  `json:"owner"`
}

func (CreateOrRegister) OpCode() uint32 { return OpCreateOrRegister }
func (CreateOrRegister) OpName() string { return "CreateOrRegister" }

// TrackAck answers CreateOrRegister.
type TrackAck struct {
	QueryID    uint64          `json:"query_id"`
	Created    bool            `json:"created"`
	Title      string          `json:"title"`
	Collection *ledger.Address `json:"collection,omitempty"`
	Owner      ledger.Address  `json:"owner"`
}

func (TrackAck) OpCode() uint32 { return OpTrackAck }
func (TrackAck) OpName() string { return "TrackAck" }

// RegisterTrack asks a collection to list a track that now exists.
type RegisterTrack struct {
	QueryID uint64         `json:"query_id"`
	Track   ledger.Address `json:"track"`
}

func (RegisterTrack) OpCode() uint32 { return OpRegisterTrack }
func (RegisterTrack) OpName() string { return "RegisterTrack" }

// Outcome is the final result of a request reported to its caller.
type Outcome uint8

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "succeeded":
		*o = OutcomeSucceeded
	case "failed":
		*o = OutcomeFailed
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// Excesses returns residual value to the caller and ends a request.
type Excesses struct {
	QueryID  uint64  `json:"query_id"`
	Outcome  Outcome `json:"outcome"`
	ExitCode int     `json:"exit_code,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

func (Excesses) OpCode() uint32 { return OpExcesses }
func (Excesses) OpName() string { return "Excesses" }
