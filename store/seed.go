package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/stevemurr/recordstore/logging"
	"github.com/stevemurr/recordstore/schema"
)

// Source supplies a seed document: a JSON object with one optional array of
// candidate records per collection name.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// FileSource reads the seed document from a path on disk.
type FileSource string

func (f FileSource) Name() string { return string(f) }

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

type readerSource struct {
	name string
	r    io.Reader
}

// ReaderSource wraps an already open reader. It can be opened once.
func ReaderSource(name string, r io.Reader) Source {
	return &readerSource{name: name, r: r}
}

func (s *readerSource) Name() string { return s.name }

func (s *readerSource) Open() (io.ReadCloser, error) {
	if s.r == nil {
		return nil, errors.New("reader already consumed")
	}
	r := s.r
	s.r = nil
	return io.NopCloser(r), nil
}

// SkippedRecord describes a seed candidate that failed validation.
type SkippedRecord struct {
	Collection string   `json:"collection"`
	Position   int      `json:"position"`
	Missing    []string `json:"missing,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// SeedResult reports the outcome of SeedFromSource.
type SeedResult struct {
	Inserted int             `json:"inserted"`
	Skipped  []SkippedRecord `json:"skipped"`
}

// SeedFromSource loads every valid candidate record from src. Collections are
// processed in registry order and records in document order. Invalid records
// are skipped and reported in the result. A storage failure stops the load;
// records written before it remain and are counted.
func (s *Store) SeedFromSource(ctx context.Context, src Source) (SeedResult, error) {
	result := SeedResult{Skipped: []SkippedRecord{}}
	logger := logging.LoggerFromContext(ctx, s.logger).With(zap.String("source", src.Name()))

	doc, err := loadSource(src)
	if err != nil {
		return result, &SourceLoadError{Source: src.Name(), Err: err}
	}

	for _, collection := range schema.Names() {
		items, _ := doc[collection].([]any)
		for i, item := range items {
			record, ok := item.(map[string]any)
			if !ok {
				result.Skipped = append(result.Skipped, SkippedRecord{
					Collection: collection, Position: i, Reason: "record is not an object",
				})
				continue
			}
			key, raw, err := prepare(collection, record)
			if err != nil {
				skipped := SkippedRecord{Collection: collection, Position: i, Reason: err.Error()}
				var ve *ValidationError
				if errors.As(err, &ve) && len(ve.Missing) > 0 {
					skipped.Missing = ve.Missing
					skipped.Reason = ""
				}
				result.Skipped = append(result.Skipped, skipped)
				continue
			}
			if err := s.write(ctx, collection, key, raw); err != nil {
				return result, err
			}
			result.Inserted++
		}
	}

	if len(result.Skipped) > 0 {
		logger.Warn("skipped invalid seed records", zap.Int("skipped", len(result.Skipped)))
	}
	logger.Info("seed complete", zap.Int("inserted", result.Inserted))
	return result, nil
}

// SeedFromFile is SeedFromSource over a file on disk.
func (s *Store) SeedFromFile(ctx context.Context, path string) (SeedResult, error) {
	return s.SeedFromSource(ctx, FileSource(path))
}

func loadSource(src Source) (map[string]any, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("unexpected data after JSON document")
	}
	if doc == nil {
		return nil, errors.New("seed document is null")
	}
	return doc, nil
}
