package catalog

import (
	"fmt"

	"github.com/najoast/catalog/core"
	"github.com/najoast/catalog/ledger"
)

// Templates of the catalog actors.
const (
	CatalogTemplate    ledger.TemplateID = "catalog"
	CollectionTemplate ledger.TemplateID = "collection"
	TrackTemplate      ledger.TemplateID = "track"
)

// DefaultMaxTitleLength bounds track and collection titles, in bytes.
const DefaultMaxTitleLength = 128

// Limits bound what the catalog accepts.
type Limits struct {
	MaxTitleLength int
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{MaxTitleLength: DefaultMaxTitleLength}
}

// CatalogInit returns the StateInit of the catalog deployed by owner.
func CatalogInit(owner ledger.Address) ledger.StateInit {
	return ledger.StateInit{
		Template: CatalogTemplate,
		Params:   ledger.NewParams().Address(owner).Bytes(),
	}
}

// CollectionInit returns the StateInit of the collection titled title under
// the catalog at controller.
func CollectionInit(title string, controller ledger.Address) ledger.StateInit {
	return ledger.StateInit{
		Template: CollectionTemplate,
		Params:   ledger.NewParams().String(title).Address(controller).Bytes(),
	}
}

// TrackInit returns the StateInit of a track. collection is nil for a track
// outside any collection.
func TrackInit(title string, collection *ledger.Address, controller ledger.Address) ledger.StateInit {
	return ledger.StateInit{
		Template: TrackTemplate,
		Params:   ledger.NewParams().String(title).OptAddress(collection).Address(controller).Bytes(),
	}
}

// CollectionAddress derives a collection address without deploying it.
func CollectionAddress(title string, controller ledger.Address) ledger.Address {
	return CollectionInit(title, controller).Address()
}

// TrackAddress derives a track address without deploying it.
func TrackAddress(title string, collection *ledger.Address, controller ledger.Address) ledger.Address {
	return TrackInit(title, collection, controller).Address()
}

// Register makes the catalog templates deployable on sys.
func Register(sys *core.System, limits Limits) error {
	if limits.MaxTitleLength <= 0 {
		return fmt.Errorf("max title length must be positive, got %d", limits.MaxTitleLength)
	}
	for id, f := range map[ledger.TemplateID]core.Factory{
		CatalogTemplate: func(self ledger.Address, init ledger.StateInit) (core.Handler, error) {
			return newCatalog(self, init, limits)
		},
		CollectionTemplate: newCollection,
		TrackTemplate:      newTrack,
	} {
		if err := sys.RegisterTemplate(id, f); err != nil {
			return err
		}
	}
	return nil
}

// State is the lifecycle of a child actor.
type State uint8

const (
	// Uninitialized children exist at their address but have not yet
	// accepted a creation message.
	Uninitialized State = iota
	Initialized
)

// String returns the string representation of State.
func (s State) String() string {
	if s == Initialized {
		return "initialized"
	}
	return "uninitialized"
}
