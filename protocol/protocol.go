// Package protocol defines the messages exchanged by catalog actors and a
// codec that frames them by op code.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Body is implemented by every message type. It matches the body contract
// of the ledger runtime.
type Body interface {
	OpCode() uint32
	OpName() string
}

// Schema describes one registered message type.
type Schema struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`

	typ reflect.Type
}

// Registry maps op codes and names to message types.
type Registry struct {
	byCode map[uint32]*Schema
	byName map[string]*Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byCode: make(map[uint32]*Schema),
		byName: make(map[string]*Schema),
	}
}

// Register adds the type of sample. Samples must be non-pointer structs.
func (r *Registry) Register(sample Body) error {
	t := reflect.TypeOf(sample)
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("message %s is not a struct", t)
	}
	if s, exists := r.byCode[sample.OpCode()]; exists {
		return fmt.Errorf("op code 0x%08x already registered by %s", sample.OpCode(), s.Name)
	}
	if _, exists := r.byName[sample.OpName()]; exists {
		return fmt.Errorf("message name %q already registered", sample.OpName())
	}
	s := &Schema{Code: sample.OpCode(), Name: sample.OpName(), typ: t}
	r.byCode[s.Code] = s
	r.byName[s.Name] = s
	return nil
}

// Lookup finds a schema by message name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Schemas returns every registered schema ordered by name.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.byName))
	for _, s := range r.byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Encode frames b as a 4-byte big-endian op code followed by its JSON form.
func (r *Registry) Encode(b Body) ([]byte, error) {
	if _, ok := r.byCode[b.OpCode()]; !ok {
		return nil, fmt.Errorf("unknown op code 0x%08x", b.OpCode())
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", b.OpName(), err)
	}
	out := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(out, b.OpCode())
	return append(out, payload...), nil
}

// Decode reverses Encode.
func (r *Registry) Decode(data []byte) (Body, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short")
	}
	code := binary.BigEndian.Uint32(data)
	s, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("unknown op code 0x%08x", code)
	}
	return s.decode(data[4:])
}

// DecodeJSON builds the message called name from its JSON form.
func (r *Registry) DecodeJSON(name string, raw []byte) (Body, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown message %q", name)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	return s.decode(raw)
}

func (s *Schema) decode(raw []byte) (Body, error) {
	v := reflect.New(s.typ)
	if err := json.Unmarshal(raw, v.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.Name, err)
	}
	return v.Elem().Interface().(Body), nil
}

// DefaultRegistry returns a registry holding every catalog message.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, b := range []Body{
		Deploy{}, DeployOk{}, Excesses{},
		AddTrack{}, CreateOrNotify{}, CollectionAck{},
		CreateOrRegister{}, TrackAck{}, RegisterTrack{},
	} {
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
	return r
}
