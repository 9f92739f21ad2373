package ledger

import (
	"errors"
	"fmt"
)

// ErrInvalidFees is returned by FeeSchedule.Validate.
var ErrInvalidFees = errors.New("invalid fee schedule")

// FeeSchedule prices every step of message processing.
type FeeSchedule struct {
	// ComputeFee is charged once per transaction, out of the inbound value.
	ComputeFee Coins `yaml:"compute_fee" json:"compute_fee" split_words:"true"`

	// ForwardFee is paid by every delivered message out of its own value.
	ForwardFee Coins `yaml:"forward_fee" json:"forward_fee" split_words:"true"`

	// ProcessingFee is kept by the catalog when it rejects a request.
	ProcessingFee Coins `yaml:"processing_fee" json:"processing_fee" split_words:"true"`

	// ServiceFee is kept by the catalog for every accepted request.
	ServiceFee Coins `yaml:"service_fee" json:"service_fee" split_words:"true"`

	// ChildReserve stays on a child actor's balance when it is created.
	ChildReserve Coins `yaml:"child_reserve" json:"child_reserve" split_words:"true"`

	// RegisterValue is attached to the registration notice sent to a collection.
	RegisterValue Coins `yaml:"register_value" json:"register_value" split_words:"true"`
}

// DefaultFees returns the default fee schedule.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		ComputeFee:    MustParseCoins("0.005"),
		ForwardFee:    MustParseCoins("0.001"),
		ProcessingFee: MustParseCoins("0.01"),
		ServiceFee:    MustParseCoins("0.01"),
		ChildReserve:  MustParseCoins("0.05"),
		RegisterValue: MustParseCoins("0.01"),
	}
}

// Validate checks that the schedule can fund a full round trip.
func (f FeeSchedule) Validate() error {
	switch {
	case f.ComputeFee < 0, f.ForwardFee < 0, f.ProcessingFee < 0,
		f.ServiceFee < 0, f.ChildReserve < 0, f.RegisterValue < 0:
		return fmt.Errorf("%w: negative amount", ErrInvalidFees)
	case f.ProcessingFee < f.ComputeFee:
		return fmt.Errorf("%w: processing fee %s below compute fee %s", ErrInvalidFees, f.ProcessingFee, f.ComputeFee)
	case f.RegisterValue < f.ForwardFee+f.ComputeFee:
		return fmt.Errorf("%w: register value %s cannot pay for its own delivery", ErrInvalidFees, f.RegisterValue)
	}
	return nil
}

// EstimateAddTrack returns the smallest attached value that lets a first-time
// AddTrack complete, including the terminal refund.
func (f FeeSchedule) EstimateAddTrack(withCollection bool) Coins {
	hop := f.ForwardFee + f.ComputeFee
	// caller->catalog, catalog->track, track->catalog, catalog->caller
	total := 4*hop + f.ServiceFee + f.ChildReserve
	if withCollection {
		// catalog->collection, collection->catalog, plus the registration notice
		total += 2*hop + f.ChildReserve + f.RegisterValue
	}
	return total
}
