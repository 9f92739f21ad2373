package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/najoast/catalog/ledger"
)

// AddressEntry is one labelled address.
type AddressEntry struct {
	Name    string         `json:"name"`
	Address ledger.Address `json:"address"`
}

// String returns a string representation of the entry.
func (e AddressEntry) String() string {
	return fmt.Sprintf("%s(%s)", e.Address.Short(), e.Name)
}

// AddressBook maps addresses to human-readable names for traces and logs.
// Labels carry no meaning on the ledger.
type AddressBook struct {
	mu sync.RWMutex

	// Maps address to name
	names map[ledger.Address]string

	// Maps name to address
	byName map[string]ledger.Address
}

// NewAddressBook creates an empty AddressBook.
func NewAddressBook() *AddressBook {
	return &AddressBook{
		names:  make(map[ledger.Address]string),
		byName: make(map[string]ledger.Address),
	}
}

// Label names addr. Relabelling an address replaces its old name; a name
// already used by another address is rejected.
func (b *AddressBook) Label(addr ledger.Address, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if owner, exists := b.byName[name]; exists && owner != addr {
		return fmt.Errorf("name '%s' already labels %s", name, owner.Short())
	}
	if old, exists := b.names[addr]; exists {
		delete(b.byName, old)
	}
	b.names[addr] = name
	b.byName[name] = addr
	return nil
}

// Name returns the label of addr, or its short form if it has none.
func (b *AddressBook) Name(addr ledger.Address) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if name, exists := b.names[addr]; exists {
		return name
	}
	return addr.Short()
}

// Lookup finds an address by label.
func (b *AddressBook) Lookup(name string) (ledger.Address, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	addr, exists := b.byName[name]
	return addr, exists
}

// Entries returns all labels sorted by name.
func (b *AddressBook) Entries() []AddressEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]AddressEntry, 0, len(b.names))
	for addr, name := range b.names {
		entries = append(entries, AddressEntry{Name: name, Address: addr})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
