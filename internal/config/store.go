// Package config provides the orchestrator's adapter onto the external
// key/value configuration manager: named option values per logical owner
// (global, per-node, per-node-per-interface).
package config

import (
	"sync"
)

// GlobalOwner is the owner id that holds platform-wide configuration.
const GlobalOwner = 0

// InterfaceKey derives the owner id for interface-scoped configuration,
// so that hosts with multiple interfaces of the same model can carry a
// distinct config per interface.
func InterfaceKey(hostNodeID, ifIndex int) int {
	return 1000*hostNodeID + ifIndex
}

// Store is the read/write surface the orchestrator needs from the
// configuration manager.
type Store interface {
	// Get returns the values stored for (owner, modelName), and whether
	// any were stored.
	Get(owner int, modelName string) (map[string]string, bool)

	// Set replaces the values stored for (owner, modelName).
	Set(owner int, modelName string, values map[string]string)

	// SetValue stores a single option value for (owner, modelName).
	SetValue(owner int, modelName, id, value string)

	// Value returns one option value for (owner, modelName), or "".
	Value(owner int, modelName, id string) string

	// Models returns the model names with stored config for owner.
	Models(owner int) []string
}

// SessionStore is the in-memory Store implementation owned by one
// emulation run.
type SessionStore struct {
	mu sync.RWMutex
	// owner -> model name -> option id -> value
	data map[int]map[string]map[string]string
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{data: make(map[int]map[string]map[string]string)}
}

func (s *SessionStore) Get(owner int, modelName string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values, ok := s.data[owner][modelName]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, true
}

func (s *SessionStore) Set(owner int, modelName string, values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[owner] == nil {
		s.data[owner] = make(map[string]map[string]string)
	}
	stored := make(map[string]string, len(values))
	for k, v := range values {
		stored[k] = v
	}
	s.data[owner][modelName] = stored
}

func (s *SessionStore) SetValue(owner int, modelName, id, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[owner] == nil {
		s.data[owner] = make(map[string]map[string]string)
	}
	if s.data[owner][modelName] == nil {
		s.data[owner][modelName] = make(map[string]string)
	}
	s.data[owner][modelName][id] = value
}

func (s *SessionStore) Value(owner int, modelName, id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[owner][modelName][id]
}

func (s *SessionStore) Models(owner int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data[owner]))
	for name := range s.data[owner] {
		names = append(names, name)
	}
	return names
}

// Merge overlays stored values for (owner, modelName) on top of base,
// returning a fresh map. base is not modified.
func Merge(s Store, owner int, modelName string, base map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	if values, ok := s.Get(owner, modelName); ok {
		for k, v := range values {
			out[k] = v
		}
	}
	return out
}

// ResolveInterface resolves the configuration used for one interface
// attachment: interface-scoped values win, then the host node's values,
// then the radio node's values, then the model defaults. Raw-transport
// interfaces always need a document, so the default fallback is
// unconditional.
func ResolveInterface(s Store, modelName string, radioNodeID, hostNodeID, ifIndex int, defaults map[string]string) map[string]string {
	if values, ok := s.Get(InterfaceKey(hostNodeID, ifIndex), modelName); ok {
		return values
	}
	if values, ok := s.Get(hostNodeID, modelName); ok {
		return values
	}
	if values, ok := s.Get(radioNodeID, modelName); ok {
		return values
	}
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	return out
}
