package statestore

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Client is the slice of the etcd client surface the store needs. Kept as an
// interface so tests can swap in fakes.
type Client interface {
	KV
	Watcher
	Lease
}

type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

type Watcher interface {
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

type Lease interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
}

type EventType int

const (
	// EventPut carries a created or updated key.
	EventPut EventType = iota
	// EventDelete carries a removed key (value empty).
	EventDelete
	// EventReset marks the start of a snapshot replay after (re)connect.
	// Consumers should stage state until the matching EventSynced.
	EventReset
	// EventSynced marks the end of a snapshot replay.
	EventSynced
)

type Event struct {
	Type  EventType
	Key   string
	Value []byte
}

type KeyValue struct {
	Key    string
	Value  []byte
	ModRev int64
}

// Store is the shared realtime state tree all clients coordinate through.
// Keys written with WithSessionLease are removed automatically by the store
// when this client's connection drops.
type Store interface {
	// Get returns the value at key, or nil when the key is absent.
	Get(ctx context.Context, key string) (*KeyValue, error)

	// List returns all keys under prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]KeyValue, error)

	Put(ctx context.Context, key string, value []byte, opts ...PutOption) error

	// PutIfRevision writes key only if its mod revision still equals modRev;
	// modRev 0 means the key must not exist. Returns false when the
	// precondition failed (someone else won the race).
	PutIfRevision(ctx context.Context, key string, value []byte, modRev int64, opts ...PutOption) (bool, error)

	// Delete removes key; removing an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// DeleteIfRevision removes key only if its mod revision still equals
	// modRev. Returns false when the key changed or vanished in between.
	DeleteIfRevision(ctx context.Context, key string, modRev int64) (bool, error)

	// Watch streams the current state under prefix (as an EventReset /
	// EventPut* / EventSynced replay) followed by live changes, reconnecting
	// with backoff until ctx is done. The channel closes when ctx is done.
	Watch(ctx context.Context, prefix string) <-chan Event

	// MintKey derives a fresh collision-resistant id by pushing a throwaway
	// node under scratch and immediately deleting it.
	MintKey(ctx context.Context, scratch string) (string, error)

	// Close revokes the session lease, letting lease-bound keys expire.
	Close(ctx context.Context) error
}

type putOptions struct {
	sessionLease bool
}

type PutOption func(*putOptions)

// WithSessionLease binds the key to this client's session lease, i.e. a
// remove-on-disconnect rule.
func WithSessionLease() PutOption {
	return func(o *putOptions) {
		o.sessionLease = true
	}
}

// ProbedPutOptions is the resolved form of a PutOption list, for fake store
// implementations that need to honor lease semantics.
type ProbedPutOptions struct {
	SessionLease bool
}

func ProbePutOptions(opts []PutOption) ProbedPutOptions {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	return ProbedPutOptions{SessionLease: o.sessionLease}
}
