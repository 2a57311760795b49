// Package cache exposes a memcache style API on top of a partitioned table
// store. Every cache key maps to the row whose partition key and row key are
// both the cache key; the value lives, encoded, in a single column.
//
// Operations never return errors. A failed call reports false and, except for
// a failed lookup in Get, leaves the fault in LastError. Get cannot tell a
// missing key from a store failure, and it does not touch LastError when the
// lookup itself fails.
//
// An Adapter is not safe for concurrent use: the last error slot is shared
// state. Serialize calls or use one Adapter per goroutine.
package cache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog/log"
	config "github.com/tablecache/tablecache/configs"
	"github.com/tablecache/tablecache/internal/metrics"
	"github.com/tablecache/tablecache/internal/storage"
)

// ValueColumn is the property holding the encoded value.
const ValueColumn = "value"

const (
	opSet     = "set"
	opGet     = "get"
	opReplace = "replace"
	opDelete  = "delete"
)

type Server struct {
	Host string
	Port string
}

type Adapter struct {
	store          storage.TableStore
	table          string
	requestTimeout time.Duration
	servers        []Server
	err            error
}

type Option func(*Adapter)

// WithRequestTimeout bounds every table store call. Zero leaves the deadline to
// the store client.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.requestTimeout = d
	}
}

// New returns an adapter over store and ensures tableName exists. Table
// creation failures, including an already existing table, are ignored.
func New(store storage.TableStore, tableName string, opts ...Option) *Adapter {
	a := &Adapter{
		store: store,
		table: tableName,
	}
	for _, opt := range opts {
		opt(a)
	}

	ctx, cancel := a.context()
	defer cancel()
	if err := store.CreateTable(ctx, tableName); err != nil {
		metrics.TableCreateFailures.Inc()
		log.Debug().Err(err).Str("table", tableName).Msg("Table creation skipped")
	}
	return a
}

// Open connects to the table service account and returns an adapter for
// tableName. protocol is http or https; empty means http.
func Open(accountName, accountKey, tableName, protocol string) (*Adapter, error) {
	store, err := storage.NewAzureTableConnector(&config.AzureConfig{
		AccountName: accountName,
		AccountKey:  accountKey,
		Protocol:    protocol,
	})
	if err != nil {
		return nil, err
	}
	return New(store, tableName), nil
}

func (a *Adapter) Table() string {
	return a.table
}

// AddServer records a memcache server. The address is never dialed.
func (a *Adapter) AddServer(host string, port string) bool {
	a.servers = append(a.servers, Server{Host: host, Port: port})
	return true
}

func (a *Adapter) Servers() []Server {
	out := make([]Server, len(a.servers))
	copy(out, a.servers)
	return out
}

// Set stores value under key, creating or overwriting the row. compress and
// timeout are accepted for memcache compatibility and ignored.
func (a *Adapter) Set(key string, value any, compress int, timeout int) bool {
	return a.write(opSet, key, value, a.store.InsertOrReplaceEntity)
}

// Replace overwrites the value of an existing key. It fails when the key has
// no row. compress and timeout are ignored.
func (a *Adapter) Replace(key string, value any, compress int, timeout int) bool {
	return a.write(opReplace, key, value, a.store.UpdateEntity)
}

// Get returns the value stored under key. The second result is false when the
// key is missing, the store failed, or the stored value could not be decoded.
func (a *Adapter) Get(key string) (any, bool) {
	defer a.observe(opGet)()

	res := call(a, opGet, key, func(ctx context.Context) (storage.Entity, error) {
		return a.store.GetEntity(ctx, a.table, key, key)
	})
	if !res.ok() {
		// misses and lookup faults are reported the same way and not recorded
		a.count(opGet, res.fault)
		log.Debug().Err(res.fault).Msg("Cache lookup failed")
		return nil, false
	}

	value, err := a.decode(res.value)
	if err != nil {
		a.fail(storage.NewFault(opGet, a.table, key, err))
		return nil, false
	}
	a.count(opGet, nil)
	return value, true
}

// GetInto decodes the value stored under key into out, which must be a
// non-nil pointer to a type the stored value is assignable to.
func (a *Adapter) GetInto(key string, out any) bool {
	value, ok := a.Get(key)
	if !ok {
		return false
	}

	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		a.err = storage.NewFault(opGet, a.table, key, fmt.Errorf("GetInto requires a non-nil pointer, got %T", out))
		return false
	}
	elem := target.Elem()
	if value == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return true
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(elem.Type()) {
		a.err = storage.NewFault(opGet, a.table, key, fmt.Errorf("stored %s is not assignable to %s", v.Type(), elem.Type()))
		return false
	}
	elem.Set(v)
	return true
}

// Delete removes the row for key. Deleting a missing key fails.
func (a *Adapter) Delete(key string) bool {
	defer a.observe(opDelete)()

	res := call(a, opDelete, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.store.DeleteEntity(ctx, a.table, key, key)
	})
	if !res.ok() {
		a.fail(res.fault)
		return false
	}
	a.count(opDelete, nil)
	return true
}

// Connect always succeeds; the store connection is opened by New.
func (a *Adapter) Connect(host string, port int, timeout int) bool {
	return true
}

// PConnect always succeeds; the store connection is opened by New.
func (a *Adapter) PConnect(host string, port int, timeout int) bool {
	return true
}

// Close always succeeds. The store, if it holds resources, is released by its
// owner.
func (a *Adapter) Close() bool {
	return true
}

// LastError returns the fault of the most recent failed operation. It is not
// cleared by later successes.
func (a *Adapter) LastError() error {
	return a.err
}

func (a *Adapter) write(op string, key string, value any, fn func(context.Context, string, storage.Entity) error) bool {
	defer a.observe(op)()

	encoded, err := encodeValue(value)
	if err != nil {
		a.fail(storage.NewFault(op, a.table, key, err))
		return false
	}
	entity := storage.Entity{
		PartitionKey: key,
		RowKey:       key,
		Properties:   map[string]string{ValueColumn: encoded},
	}

	res := call(a, op, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx, a.table, entity)
	})
	if !res.ok() {
		a.fail(res.fault)
		return false
	}
	a.count(op, nil)
	return true
}

func (a *Adapter) decode(entity storage.Entity) (any, error) {
	encoded, ok := entity.Properties[ValueColumn]
	if !ok {
		return nil, fmt.Errorf("entity has no %q property", ValueColumn)
	}
	return decodeValue(encoded)
}

func (a *Adapter) fail(fault *storage.Fault) {
	a.err = fault
	a.count(fault.Op, fault)
	log.Debug().Err(fault).Msg("Cache operation failed")
}

func (a *Adapter) count(op string, fault *storage.Fault) {
	result := metrics.ResultOK
	if fault != nil {
		result = metrics.ResultFault
		if errors.Is(fault, storage.ErrNotFound) {
			result = metrics.ResultMiss
		}
	}
	metrics.CacheOperations.WithLabelValues(op, result).Inc()
}

func (a *Adapter) observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.CacheOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (a *Adapter) context() (context.Context, context.CancelFunc) {
	if a.requestTimeout > 0 {
		return context.WithTimeout(context.Background(), a.requestTimeout)
	}
	return context.WithCancel(context.Background())
}
