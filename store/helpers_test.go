package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/stevemurr/recordstore/backend"
)

// recordingBackend wraps a MemoryBackend, counts calls per primitive and can
// be told to fail any of them.
type recordingBackend struct {
	*backend.MemoryBackend

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		MemoryBackend: backend.NewMemoryBackend(),
		calls:         map[string]int{},
		fail:          map[string]error{},
	}
}

func (r *recordingBackend) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	return r.fail[op]
}

func (r *recordingBackend) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *recordingBackend) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *recordingBackend) failOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

func (r *recordingBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := r.record("set"); err != nil {
		return err
	}
	return r.MemoryBackend.Set(ctx, key, value)
}

func (r *recordingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := r.record("get"); err != nil {
		return nil, err
	}
	return r.MemoryBackend.Get(ctx, key)
}

func (r *recordingBackend) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if err := r.record("mget"); err != nil {
		return nil, err
	}
	return r.MemoryBackend.MGet(ctx, keys)
}

func (r *recordingBackend) SAdd(ctx context.Context, key, member string) error {
	if err := r.record("sadd"); err != nil {
		return err
	}
	return r.MemoryBackend.SAdd(ctx, key, member)
}

func (r *recordingBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := r.record("smembers"); err != nil {
		return nil, err
	}
	return r.MemoryBackend.SMembers(ctx, key)
}

var errBackendDown = errors.New("connection refused")

func cliente(dni string) map[string]any {
	return map[string]any{
		"dni":      dni,
		"nombres":  "Cliente " + dni,
		"email":    dni + "@example.com",
		"telefono": "0990000000",
		"edad":     json.Number("30"),
		"genero":   "F",
	}
}

func producto(codigo string, precio string) map[string]any {
	return map[string]any{
		"codigo":    codigo,
		"nombre":    "Producto " + codigo,
		"categoria": "perifericos",
		"precio":    json.Number(precio),
		"stock":     json.Number("10"),
	}
}
