// Package store implements the indexed record store: JSON records kept at
// "collection:id" keys, with one "index:collection" set per collection that
// lists every key written to it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/stevemurr/recordstore/backend"
	"github.com/stevemurr/recordstore/logging"
	"github.com/stevemurr/recordstore/schema"
)

// Document is a record in its generic form. Numbers decoded by the store are
// json.Number so that they round-trip verbatim.
type Document = map[string]any

// PrimaryKey returns the key under which a record is stored.
func PrimaryKey(collection, id string) string {
	return collection + ":" + id
}

// IndexKey returns the key of the set holding a collection's primary keys.
func IndexKey(collection string) string {
	return "index:" + collection
}

// Options configures a Store.
type Options struct {
	// AtomicWrites stores the record and its index entry in one backend
	// operation when the backend implements backend.Atomic.
	AtomicWrites bool
	Logger       *zap.Logger
}

// Store reads and writes collection records on a shared backend. It holds no
// locks; concurrent writes to the same key resolve in backend completion
// order.
type Store struct {
	backend backend.Backend
	atomic  backend.Atomic
	logger  *zap.Logger
}

// New creates a Store over b. The store does not own b; the caller closes it.
func New(b backend.Backend, opts Options) *Store {
	s := &Store{backend: b, logger: opts.Logger}
	if s.logger == nil {
		s.logger = zap.L()
	}
	if a, ok := b.(backend.Atomic); ok && opts.AtomicWrites {
		s.atomic = a
	}
	return s
}

// Atomic reports whether writes go through the backend's atomic primitive.
func (s *Store) Atomic() bool {
	return s.atomic != nil
}

// Put validates record and stores it as a full replacement of any previous
// record with the same identifier. It returns the record's primary key.
func (s *Store) Put(ctx context.Context, collection string, record Document) (string, error) {
	if !schema.IsValidCollection(collection) {
		return "", &UnknownCollectionError{Collection: collection}
	}
	key, raw, err := prepare(collection, record)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, collection, key, raw); err != nil {
		return "", err
	}
	return key, nil
}

// PutRecord stores a typed record in its collection.
func (s *Store) PutRecord(ctx context.Context, r schema.Record) (string, error) {
	doc, err := schema.ToDocument(r)
	if err != nil {
		return "", &ValidationError{Collection: r.CollectionName(), Reason: err.Error()}
	}
	return s.Put(ctx, r.CollectionName(), doc)
}

// GetOne returns the record with the given identifier and its primary key.
// It returns ErrNotFound when there is no such record.
func (s *Store) GetOne(ctx context.Context, collection, id string) (Document, string, error) {
	key, raw, err := s.fetch(ctx, collection, id)
	if err != nil {
		return nil, key, err
	}
	doc, err := decode(raw)
	if err != nil {
		return nil, key, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return doc, key, nil
}

// GetRecord is GetOne decoded into the collection's typed variant.
func (s *Store) GetRecord(ctx context.Context, collection, id string) (schema.Record, string, error) {
	key, raw, err := s.fetch(ctx, collection, id)
	if err != nil {
		return nil, key, err
	}
	r, err := schema.Decode(collection, raw)
	if err != nil {
		return nil, key, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return r, key, nil
}

// ListAll returns every record indexed for the collection, in no particular
// order. Index entries whose value no longer exists are skipped.
func (s *Store) ListAll(ctx context.Context, collection string) ([]Document, error) {
	if !schema.IsValidCollection(collection) {
		return nil, &UnknownCollectionError{Collection: collection}
	}
	logger := logging.LoggerFromContext(ctx, s.logger).With(zap.String("collection", collection))

	indexKey := IndexKey(collection)
	keys, err := s.backend.SMembers(ctx, indexKey)
	if err != nil {
		return nil, &StorageError{Op: "smembers", Key: indexKey, Err: err}
	}
	if len(keys) == 0 {
		return []Document{}, nil
	}

	values, err := s.backend.MGet(ctx, keys)
	if err != nil {
		return nil, &StorageError{Op: "mget", Key: indexKey, Err: err}
	}

	docs := make([]Document, 0, len(values))
	dangling := 0
	for i, raw := range values {
		if raw == nil {
			dangling++
			continue
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, &StorageError{Op: "decode", Key: keys[i], Err: err}
		}
		docs = append(docs, doc)
	}
	if dangling > 0 {
		logger.Warn("index entries without a record", zap.Int("dangling", dangling))
	}
	logger.Debug("listed collection", zap.Int("count", len(docs)))
	return docs, nil
}

func (s *Store) fetch(ctx context.Context, collection, id string) (string, []byte, error) {
	if !schema.IsValidCollection(collection) {
		return "", nil, &UnknownCollectionError{Collection: collection}
	}
	key := PrimaryKey(collection, id)
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, backend.ErrNil) {
		return key, nil, ErrNotFound
	}
	if err != nil {
		return key, nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	return key, raw, nil
}

// write stores raw at key and registers key in the collection's index. The
// sequential path writes the record first, so a crash between the two steps
// leaves an unindexed record rather than a dangling index entry.
func (s *Store) write(ctx context.Context, collection, key string, raw []byte) error {
	logger := logging.LoggerFromContext(ctx, s.logger)
	indexKey := IndexKey(collection)

	if s.atomic != nil {
		if err := s.atomic.SetAndAdd(ctx, key, raw, indexKey, key); err != nil {
			return &StorageError{Op: "set+sadd", Key: key, Err: err}
		}
		logger.Debug("stored record", zap.String("key", key), zap.Bool("atomic", true))
		return nil
	}

	if err := s.backend.Set(ctx, key, raw); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	if err := s.backend.SAdd(ctx, indexKey, key); err != nil {
		return &StorageError{Op: "sadd", Key: indexKey, Err: err}
	}
	logger.Debug("stored record", zap.String("key", key), zap.Bool("atomic", false))
	return nil
}

// prepare validates record and returns its primary key and encoding. It
// never touches the backend.
func prepare(collection string, record Document) (string, []byte, error) {
	if missing := schema.Validate(collection, record); len(missing) > 0 {
		return "", nil, &ValidationError{Collection: collection, Missing: missing}
	}
	field, err := schema.IdentifierField(collection)
	if err != nil {
		return "", nil, err
	}
	id, err := identifierString(record[field])
	if err != nil {
		return "", nil, &ValidationError{Collection: collection, Reason: fmt.Sprintf("field %q: %v", field, err)}
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", nil, &ValidationError{Collection: collection, Reason: err.Error()}
	}
	return PrimaryKey(collection, id), raw, nil
}

func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return n.String()
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// identifierString renders an identifier value as it appears in keys.
// Strings are used as is; numbers use their shortest decimal form, so 1.0
// and 1e3 become "1" and "1000". Only scalars can be identifiers.
func identifierString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case json.Number:
		return canonicalNumber(id), nil
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(id), nil
	case int32:
		return strconv.FormatInt(int64(id), 10), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint:
		return strconv.FormatUint(uint64(id), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(id), 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case bool:
		return strconv.FormatBool(id), nil
	default:
		return "", fmt.Errorf("identifier must be a string, number or boolean, got %T", v)
	}
}

func decode(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
