package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stevemurr/recordstore/backend"
	"github.com/stevemurr/recordstore/schema"
	"github.com/stevemurr/recordstore/store"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "clientes:0102", store.PrimaryKey("clientes", "0102"))
	assert.Equal(t, "index:pedidos", store.IndexKey("pedidos"))
}

func TestPutAndGetOne(t *testing.T) {
	ctx := context.Background()
	s := store.New(backend.NewMemoryBackend(), store.Options{})

	record := cliente("0102")
	record["direccion"] = map[string]any{"ciudad": "Quito", "lineas": []any{"a", "b"}}

	key, err := s.Put(ctx, "clientes", record)
	require.NoError(t, err)
	assert.Equal(t, "clientes:0102", key)

	got, gotKey, err := s.GetOne(ctx, "clientes", "0102")
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)
	if diff := cmp.Diff(record, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGetOneNotFound(t *testing.T) {
	s := store.New(backend.NewMemoryBackend(), store.Options{})
	_, key, err := s.GetOne(context.Background(), "productos", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "productos:missing", key)
}

func TestNumericIdentifierKeys(t *testing.T) {
	ctx := context.Background()
	s := store.New(backend.NewMemoryBackend(), store.Options{})

	p := producto("x", "9.99")
	p["codigo"] = json.Number("1001")
	key, err := s.Put(ctx, "productos", p)
	require.NoError(t, err)
	assert.Equal(t, "productos:1001", key)

	p2 := producto("x", "1")
	p2["codigo"] = float64(2.5)
	key, err = s.Put(ctx, "productos", p2)
	require.NoError(t, err)
	assert.Equal(t, "productos:2.5", key)

	got, _, err := s.GetOne(ctx, "productos", "1001")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1001"), got["codigo"])
}

func TestNumericIdentifierCanonicalForm(t *testing.T) {
	ctx := context.Background()
	s := store.New(backend.NewMemoryBackend(), store.Options{})

	tests := []struct {
		literal string
		key     string
	}{
		{"1.0", "productos:1"},
		{"1e3", "productos:1000"},
		{"2.50", "productos:2.5"},
		{"-0", "productos:0"},
	}
	for _, tc := range tests {
		p := producto("x", "1")
		p["codigo"] = json.Number(tc.literal)
		key, err := s.Put(ctx, "productos", p)
		require.NoError(t, err, tc.literal)
		assert.Equal(t, tc.key, key, tc.literal)
	}

	got, key, err := s.GetOne(ctx, "productos", "1")
	require.NoError(t, err)
	assert.Equal(t, "productos:1", key)
	assert.Equal(t, json.Number("1.0"), got["codigo"])
}

func TestIdentifiersAreCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := store.New(backend.NewMemoryBackend(), store.Options{})

	_, err := s.Put(ctx, "productos", producto("ABC", "1"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "productos", producto("abc", "2"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "productos", producto(" abc", "3"))
	require.NoError(t, err)

	docs, err := s.ListAll(ctx, "productos")
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestPutNonScalarIdentifier(t *testing.T) {
	b := newRecordingBackend()
	s := store.New(b, store.Options{})

	p := producto("x", "1")
	p["codigo"] = map[string]any{"nested": true}
	_, err := s.Put(context.Background(), "productos", p)

	var ve *store.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	assert.Empty(t, ve.Missing)
	assert.Contains(t, ve.Reason, "codigo")
	assert.Zero(t, b.total())
}

func TestOverwriteKeepsSingleIndexEntry(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryBackend()
	s := store.New(b, store.Options{})

	first := producto("P1", "10")
	second := producto("P1", "12.5")
	second["nombre"] = "Renamed"

	_, err := s.Put(ctx, "productos", first)
	require.NoError(t, err)
	_, err = s.Put(ctx, "productos", second)
	require.NoError(t, err)

	got, _, err := s.GetOne(ctx, "productos", "P1")
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(second, got))

	members, err := b.SMembers(ctx, store.IndexKey("productos"))
	require.NoError(t, err)
	assert.Equal(t, []string{"productos:P1"}, members)
}

func TestValidationFailsBeforeBackend(t *testing.T) {
	for _, c := range schema.Collections() {
		for _, omitted := range c.Required {
			t.Run(c.Name+"/"+omitted, func(t *testing.T) {
				b := newRecordingBackend()
				s := store.New(b, store.Options{})

				record := map[string]any{}
				for _, f := range c.Required {
					record[f] = "v"
				}
				record[omitted] = nil

				_, err := s.Put(context.Background(), c.Name, record)
				var ve *store.ValidationError
				require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
				assert.Equal(t, []string{omitted}, ve.Missing)
				assert.True(t, store.IsClientError(err))
				assert.Zero(t, b.total(), "validation must not touch the backend")
			})
		}
	}
}

func TestUnknownCollectionRejectedEverywhere(t *testing.T) {
	ctx := context.Background()
	b := newRecordingBackend()
	s := store.New(b, store.Options{})
	var uc *store.UnknownCollectionError

	_, err := s.Put(ctx, "usuarios", map[string]any{"id": "1"})
	require.True(t, errors.As(err, &uc))
	assert.Equal(t, "usuarios", uc.Collection)

	_, _, err = s.GetOne(ctx, "usuarios", "1")
	assert.True(t, errors.As(err, &uc))

	_, _, err = s.GetRecord(ctx, "usuarios", "1")
	assert.True(t, errors.As(err, &uc))

	_, err = s.ListAll(ctx, "usuarios")
	assert.True(t, errors.As(err, &uc))
	assert.True(t, store.IsClientError(err))

	assert.Zero(t, b.total())
}

func TestListAllEmpty(t *testing.T) {
	b := newRecordingBackend()
	s := store.New(b, store.Options{})

	docs, err := s.ListAll(context.Background(), "pedidos")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Len(t, docs, 0)
	assert.Equal(t, 1, b.count("smembers"))
	assert.Zero(t, b.count("mget"), "empty index must not trigger a batch fetch")
}

func TestListAllReturnsEveryRecord(t *testing.T) {
	ctx := context.Background()
	b := newRecordingBackend()
	s := store.New(b, store.Options{})

	want := map[string]map[string]any{}
	for _, dni := range []string{"1", "2", "3", "4", "5"} {
		c := cliente(dni)
		want[dni] = c
		_, err := s.Put(ctx, "clientes", c)
		require.NoError(t, err)
	}
	_, err := s.Put(ctx, "productos", producto("P1", "1"))
	require.NoError(t, err)

	docs, err := s.ListAll(ctx, "clientes")
	require.NoError(t, err)
	require.Len(t, docs, len(want))
	for _, d := range docs {
		dni := d["dni"].(string)
		assert.Empty(t, cmp.Diff(want[dni], d), "record %s", dni)
	}
	assert.Equal(t, 1, b.count("mget"), "listing must batch-fetch in one request")
}

func TestListAllDropsDanglingEntries(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryBackend()
	core, logs := observer.New(zap.WarnLevel)
	s := store.New(b, store.Options{Logger: zap.New(core)})

	for _, dni := range []string{"1", "2", "3"} {
		_, err := s.Put(ctx, "clientes", cliente(dni))
		require.NoError(t, err)
	}
	// An index entry whose record was evicted outside the store.
	b.Delete("clientes:2")
	require.NoError(t, b.SAdd(ctx, store.IndexKey("clientes"), "clientes:ghost"))

	docs, err := s.ListAll(ctx, "clientes")
	require.NoError(t, err)

	var dnis []string
	for _, d := range docs {
		dnis = append(dnis, d["dni"].(string))
	}
	sort.Strings(dnis)
	assert.Equal(t, []string{"1", "3"}, dnis)
	assert.Equal(t, 1, logs.FilterMessage("index entries without a record").Len())
}

func TestStorageErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		op   string
		run  func(s *store.Store) error
	}{
		{"put set", "set", func(s *store.Store) error {
			_, err := s.Put(ctx, "clientes", cliente("1"))
			return err
		}},
		{"put sadd", "sadd", func(s *store.Store) error {
			_, err := s.Put(ctx, "clientes", cliente("1"))
			return err
		}},
		{"get", "get", func(s *store.Store) error {
			_, _, err := s.GetOne(ctx, "clientes", "1")
			return err
		}},
		{"list smembers", "smembers", func(s *store.Store) error {
			_, err := s.ListAll(ctx, "clientes")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newRecordingBackend()
			b.failOn(tc.op, errBackendDown)
			err := tc.run(store.New(b, store.Options{}))

			var se *store.StorageError
			require.True(t, errors.As(err, &se), "expected StorageError, got %v", err)
			assert.Equal(t, tc.op, se.Op)
			assert.ErrorIs(t, err, errBackendDown)
			assert.False(t, store.IsClientError(err))
		})
	}

	t.Run("list mget", func(t *testing.T) {
		b := newRecordingBackend()
		s := store.New(b, store.Options{})
		_, err := s.Put(ctx, "clientes", cliente("1"))
		require.NoError(t, err)
		b.failOn("mget", errBackendDown)

		_, err = s.ListAll(ctx, "clientes")
		var se *store.StorageError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "mget", se.Op)
	})
}

func TestSequentialWriteOrder(t *testing.T) {
	ctx := context.Background()
	b := newRecordingBackend()
	s := store.New(b, store.Options{AtomicWrites: true})
	assert.False(t, s.Atomic(), "memory backend has no atomic primitive")

	// Failing the index step must leave the record written but unindexed.
	b.failOn("sadd", errBackendDown)
	_, err := s.Put(ctx, "clientes", cliente("7"))
	require.Error(t, err)

	raw, err := b.MemoryBackend.Get(ctx, "clientes:7")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	members, err := b.MemoryBackend.SMembers(ctx, store.IndexKey("clientes"))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAtomicWritePath(t *testing.T) {
	ctx := context.Background()
	b, err := backend.NewBBoltBackend(filepath.Join(t.TempDir(), "atomic.db"))
	require.NoError(t, err)
	defer b.Close()

	s := store.New(b, store.Options{AtomicWrites: true})
	require.True(t, s.Atomic())
	assert.False(t, store.New(b, store.Options{}).Atomic())

	key, err := s.Put(ctx, "pedidos", map[string]any{
		"codigo": "O1", "clienteId": "0102", "fecha": "2024-01-05",
		"subtotal": json.Number("10"), "iva": json.Number("1.2"),
		"total": json.Number("11.2"), "estado": "pendiente",
	})
	require.NoError(t, err)

	members, err := b.SMembers(ctx, store.IndexKey("pedidos"))
	require.NoError(t, err)
	assert.Equal(t, []string{key}, members)

	docs, err := s.ListAll(ctx, "pedidos")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, json.Number("11.2"), docs[0]["total"])
}

func TestTypedRecords(t *testing.T) {
	ctx := context.Background()
	s := store.New(backend.NewMemoryBackend(), store.Options{})

	in := schema.DetallePedido{Codigo: "D1", ProductoID: "P1", Cantidad: 3, Detalle: "mouse", PrecioUnit: 12.5}
	key, err := s.PutRecord(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "detalle_pedido:D1", key)

	out, _, err := s.GetRecord(ctx, "detalle_pedido", "D1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, _, err = s.GetRecord(ctx, "detalle_pedido", "D2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCorruptValueIsStorageError(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryBackend()
	s := store.New(b, store.Options{})
	require.NoError(t, b.Set(ctx, "clientes:bad", []byte("{not json")))

	_, _, err := s.GetOne(ctx, "clientes", "bad")
	var se *store.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "decode", se.Op)
}
