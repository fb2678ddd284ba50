package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// JsonFileBackend stores all values and sets in one JSON file on disk. Every
// mutation rewrites the file, so it suits small data sets and local runs.
//
// Layout:
//
//	data_dir/
//	  kv.json   # {"values": {key: value}, "sets": {key: [member, ...]}}
type JsonFileBackend struct {
	mu   sync.RWMutex
	path string
}

type jsonFileState struct {
	Values map[string]string   `json:"values"`
	Sets   map[string][]string `json:"sets"`
}

func NewJsonFileBackend(dir string) (*JsonFileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileBackend{path: filepath.Join(dir, "kv.json")}, nil
}

func (s *JsonFileBackend) load() (*jsonFileState, error) {
	state := &jsonFileState{
		Values: map[string]string{},
		Sets:   map[string][]string{},
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("corrupt %s: %w", s.path, err)
	}
	if state.Values == nil {
		state.Values = map[string]string{}
	}
	if state.Sets == nil {
		state.Sets = map[string][]string{}
	}
	return state, nil
}

func (s *JsonFileBackend) save(state *jsonFileState) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (state *jsonFileState) add(key, member string) {
	members := state.Sets[key]
	i := sort.SearchStrings(members, member)
	if i < len(members) && members[i] == member {
		return
	}
	members = append(members, "")
	copy(members[i+1:], members[i:])
	members[i] = member
	state.Sets[key] = members
}

func (s *JsonFileBackend) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.Values[key] = string(value)
	return s.save(state)
}

func (s *JsonFileBackend) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := state.Values[key]
	if !ok {
		return nil, ErrNil
	}
	return []byte(v), nil
}

func (s *JsonFileBackend) MGet(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := state.Values[k]; ok {
			out[i] = []byte(v)
		}
	}
	return out, nil
}

func (s *JsonFileBackend) SAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.add(key, member)
	return s.save(state)
}

func (s *JsonFileBackend) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	return append([]string{}, state.Sets[key]...), nil
}

// SetAndAdd writes the value and the set member with a single file rewrite.
func (s *JsonFileBackend) SetAndAdd(_ context.Context, key string, value []byte, set, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.Values[key] = string(value)
	state.add(set, member)
	return s.save(state)
}

func (s *JsonFileBackend) Close() error { return nil }
