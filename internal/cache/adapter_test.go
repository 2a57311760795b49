package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "github.com/tablecache/tablecache/configs"
	"github.com/tablecache/tablecache/internal/storage"
)

type profile struct {
	Name  string
	Age   int
	Tags  []string
	Attrs map[string]int
	Score *int
}

func init() {
	Register(profile{})
}

func newMemoryAdapter(t *testing.T) *Adapter {
	t.Helper()
	store, err := storage.NewMemoryConnector(&config.MemoryConfig{})
	require.NoError(t, err)
	return New(store, "cache")
}

// faultyStore fails the operations named in failing and delegates the rest.
type faultyStore struct {
	storage.TableStore
	failing map[string]error
	created int
}

func (f *faultyStore) CreateTable(ctx context.Context, table string) error {
	f.created++
	if err, ok := f.failing["create"]; ok {
		return err
	}
	return f.TableStore.CreateTable(ctx, table)
}

func (f *faultyStore) InsertOrReplaceEntity(ctx context.Context, table string, entity storage.Entity) error {
	if err, ok := f.failing["upsert"]; ok {
		return err
	}
	return f.TableStore.InsertOrReplaceEntity(ctx, table, entity)
}

func (f *faultyStore) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (storage.Entity, error) {
	if err, ok := f.failing["get"]; ok {
		return storage.Entity{}, err
	}
	return f.TableStore.GetEntity(ctx, table, partitionKey, rowKey)
}

func newFaultyAdapter(t *testing.T, failing map[string]error) (*Adapter, *faultyStore) {
	t.Helper()
	mem, err := storage.NewMemoryConnector(&config.MemoryConfig{})
	require.NoError(t, err)
	store := &faultyStore{TableStore: mem, failing: failing}
	return New(store, "cache"), store
}

func TestSetGetRoundTrip(t *testing.T) {
	a := newMemoryAdapter(t)

	testCases := []struct {
		name  string
		value any
	}{
		{name: "string", value: "hello"},
		{name: "empty string", value: ""},
		{name: "int", value: 42},
		{name: "negative int64", value: int64(-7)},
		{name: "float", value: 3.25},
		{name: "bool", value: true},
		{name: "bytes", value: []byte{0x00, 0xff, 0x10}},
		{name: "nil", value: nil},
		{name: "map", value: map[string]any{"name": "a", "tags": []any{"x", "y"}}},
		{name: "nested list", value: []any{1, "two", map[string]any{"three": 3.0}}},
		{name: "struct", value: profile{Name: "a", Age: 30}},
		{name: "string map", value: map[string]string{"a": "b"}},
		{name: "int map", value: map[string]int{"a": 1}},
		{name: "int64 map", value: map[string]int64{"a": -1}},
		{name: "float map", value: map[string]float64{"a": 0.5}},
		{name: "bool map", value: map[string]bool{"a": true, "b": false}},
		{name: "list of maps", value: []map[string]any{{"a": 1}, {}}},
		{name: "time", value: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{name: "empty list", value: []any{}},
		{name: "empty map", value: map[string]any{}},
		{name: "empty string slice", value: []string{}},
		{name: "nested empty list", value: map[string]any{"tags": []any{}, "more": []any{[]any{}, map[string]any{}}}},
		{name: "struct with empty fields", value: profile{Name: "e", Tags: []string{}, Attrs: map[string]int{}}},
		{name: "struct with nil fields", value: profile{Name: "n", Tags: nil, Attrs: nil}},
		{name: "struct with zero pointer", value: profile{Score: new(int)}},
		{name: "pointer to struct", value: &profile{Name: "p", Tags: []string{}}},
		{name: "pointer to empty struct", value: &profile{}},
		{name: "pointers in list", value: []any{&profile{Name: "q"}, new(int)}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			key := "key:" + tt.name
			require.True(t, a.Set(key, tt.value, 0, 0))

			got, ok := a.Get(key)
			require.True(t, ok)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestSetOverwrites(t *testing.T) {
	a := newMemoryAdapter(t)

	require.True(t, a.Set("k", "v1", 0, 0))
	require.True(t, a.Set("k", "v2", 0, 0))

	got, ok := a.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestGetMissingKey(t *testing.T) {
	a := newMemoryAdapter(t)

	got, ok := a.Get("never-set")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, a.LastError(), "a miss must not expose error detail")
}

func TestReplace(t *testing.T) {
	a := newMemoryAdapter(t)

	assert.False(t, a.Replace("absent", "v", 0, 0))
	require.Error(t, a.LastError())
	assert.ErrorIs(t, a.LastError(), storage.ErrNotFound)

	_, ok := a.Get("absent")
	assert.False(t, ok, "replace must not create a row")

	require.True(t, a.Set("present", "v1", 0, 0))
	assert.True(t, a.Replace("present", "v2", 0, 0))

	got, ok := a.Get("present")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestDelete(t *testing.T) {
	a := newMemoryAdapter(t)

	require.True(t, a.Set("k", "v", 0, 0))
	assert.True(t, a.Delete("k"))

	_, ok := a.Get("k")
	assert.False(t, ok)

	assert.False(t, a.Delete("k"))
	assert.ErrorIs(t, a.LastError(), storage.ErrNotFound)

	var fault *storage.Fault
	require.ErrorAs(t, a.LastError(), &fault)
	assert.Equal(t, "delete", fault.Op)
	assert.Equal(t, "cache", fault.Table)
	assert.Equal(t, "k", fault.Key)
}

func TestCompatibilityShimsAlwaysSucceed(t *testing.T) {
	a := newMemoryAdapter(t)

	assert.True(t, a.Connect("", -1, -1))
	assert.True(t, a.Connect("localhost", 11211, 0))
	assert.True(t, a.PConnect("", -1, -100))
	assert.True(t, a.PConnect("localhost", 0, 0))
	assert.True(t, a.Close())
	assert.True(t, a.Close())

	assert.True(t, a.AddServer("mc1", "11211"))
	assert.True(t, a.AddServer("", ""))
	assert.Equal(t, []Server{{Host: "mc1", Port: "11211"}, {Host: "", Port: ""}}, a.Servers())
}

func TestCompressAndTimeoutAreInert(t *testing.T) {
	a := newMemoryAdapter(t)

	require.True(t, a.Set("k", "v", 1, -5))
	require.True(t, a.Replace("k", "w", 2, 3600))

	got, ok := a.Get("k")
	require.True(t, ok)
	assert.Equal(t, "w", got)
}

func TestScenario(t *testing.T) {
	a := newMemoryAdapter(t)
	value := map[string]any{"name": "a"}

	assert.True(t, a.Set("user:1", value, 0, 0))

	got, ok := a.Get("user:1")
	require.True(t, ok)
	assert.Equal(t, value, got)

	assert.True(t, a.Delete("user:1"))

	_, ok = a.Get("user:1")
	assert.False(t, ok)
}

func TestConstructionIgnoresTableCreateFailure(t *testing.T) {
	_, store := newFaultyAdapter(t, map[string]error{"create": errors.New("boom")})
	assert.Equal(t, 1, store.created)

	// the table already exists for a second adapter sharing the store
	mem, err := storage.NewMemoryConnector(&config.MemoryConfig{})
	require.NoError(t, err)
	first := New(mem, "shared")
	second := New(mem, "shared")
	assert.NoError(t, first.LastError())
	assert.NoError(t, second.LastError())

	require.True(t, first.Set("k", "v", 0, 0))
	got, ok := second.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestGetFaultIsNotRecorded(t *testing.T) {
	a, _ := newFaultyAdapter(t, map[string]error{"get": errors.New("connection reset")})

	_, ok := a.Get("k")
	assert.False(t, ok)
	assert.NoError(t, a.LastError())
}

func TestSetFaultIsRecorded(t *testing.T) {
	cause := errors.New("service unavailable")
	a, _ := newFaultyAdapter(t, map[string]error{"upsert": cause})

	assert.False(t, a.Set("k", "v", 0, 0))
	assert.ErrorIs(t, a.LastError(), cause)
}

func TestLastErrorSurvivesSuccess(t *testing.T) {
	a := newMemoryAdapter(t)

	assert.False(t, a.Delete("absent"))
	first := a.LastError()
	require.Error(t, first)

	require.True(t, a.Set("k", "v", 0, 0))
	assert.Same(t, first, a.LastError())

	assert.False(t, a.Replace("other", "v", 0, 0))
	assert.NotSame(t, first, a.LastError())
}

func TestSetUnencodableValue(t *testing.T) {
	a := newMemoryAdapter(t)

	assert.False(t, a.Set("k", make(chan int), 0, 0))
	var fault *storage.Fault
	require.ErrorAs(t, a.LastError(), &fault)
	assert.Equal(t, "set", fault.Op)

	_, ok := a.Get("k")
	assert.False(t, ok)
}

func TestGetUndecodableValue(t *testing.T) {
	mem, err := storage.NewMemoryConnector(&config.MemoryConfig{})
	require.NoError(t, err)
	a := New(mem, "cache")

	ctx := context.Background()
	require.NoError(t, mem.InsertOrReplaceEntity(ctx, "cache", storage.Entity{
		PartitionKey: "garbage",
		RowKey:       "garbage",
		Properties:   map[string]string{ValueColumn: "not base64!"},
	}))
	require.NoError(t, mem.InsertOrReplaceEntity(ctx, "cache", storage.Entity{
		PartitionKey: "novalue",
		RowKey:       "novalue",
		Properties:   map[string]string{"other": "x"},
	}))

	_, ok := a.Get("garbage")
	assert.False(t, ok)
	assert.Error(t, a.LastError())

	_, ok = a.Get("novalue")
	assert.False(t, ok)
	assert.ErrorContains(t, a.LastError(), ValueColumn)
}

func TestGetInto(t *testing.T) {
	a := newMemoryAdapter(t)
	require.True(t, a.Set("p", profile{Name: "b", Age: 5}, 0, 0))

	var p profile
	require.True(t, a.GetInto("p", &p))
	assert.Equal(t, profile{Name: "b", Age: 5}, p)

	var s string
	assert.False(t, a.GetInto("p", &s))
	assert.Error(t, a.LastError())

	assert.False(t, a.GetInto("p", p))
	assert.False(t, a.GetInto("missing", &p))
}

func TestKeysWithSeparators(t *testing.T) {
	a := newMemoryAdapter(t)

	require.True(t, a.Set("a:b", "first", 0, 0))
	require.True(t, a.Set("a", "second", 0, 0))

	got, ok := a.Get("a:b")
	require.True(t, ok)
	assert.Equal(t, "first", got)

	got, ok = a.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

// deadlineStore records whether each call carried a deadline.
type deadlineStore struct {
	storage.TableStore
	deadlines []bool
}

func (d *deadlineStore) record(ctx context.Context) {
	_, ok := ctx.Deadline()
	d.deadlines = append(d.deadlines, ok)
}

func (d *deadlineStore) CreateTable(ctx context.Context, table string) error {
	d.record(ctx)
	return d.TableStore.CreateTable(ctx, table)
}

func (d *deadlineStore) InsertOrReplaceEntity(ctx context.Context, table string, entity storage.Entity) error {
	d.record(ctx)
	return d.TableStore.InsertOrReplaceEntity(ctx, table, entity)
}

func (d *deadlineStore) GetEntity(ctx context.Context, table string, partitionKey string, rowKey string) (storage.Entity, error) {
	d.record(ctx)
	return d.TableStore.GetEntity(ctx, table, partitionKey, rowKey)
}

func (d *deadlineStore) UpdateEntity(ctx context.Context, table string, entity storage.Entity) error {
	d.record(ctx)
	return d.TableStore.UpdateEntity(ctx, table, entity)
}

func (d *deadlineStore) DeleteEntity(ctx context.Context, table string, partitionKey string, rowKey string) error {
	d.record(ctx)
	return d.TableStore.DeleteEntity(ctx, table, partitionKey, rowKey)
}

func TestRequestTimeout(t *testing.T) {
	testCases := []struct {
		name     string
		opts     []Option
		deadline bool
	}{
		{name: "timeout set", opts: []Option{WithRequestTimeout(time.Second)}, deadline: true},
		{name: "zero timeout", opts: []Option{WithRequestTimeout(0)}, deadline: false},
		{name: "no option", deadline: false},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			mem, err := storage.NewMemoryConnector(&config.MemoryConfig{})
			require.NoError(t, err)
			store := &deadlineStore{TableStore: mem}

			a := New(store, "cache", tt.opts...)
			require.True(t, a.Set("k", "v", 0, 0))
			require.True(t, a.Replace("k", "w", 0, 0))
			_, ok := a.Get("k")
			require.True(t, ok)
			require.True(t, a.Delete("k"))

			require.Len(t, store.deadlines, 5)
			for i, got := range store.deadlines {
				assert.Equal(t, tt.deadline, got, "call %d", i)
			}
		})
	}
}
