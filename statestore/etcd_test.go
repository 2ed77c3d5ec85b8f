package statestore

import (
	"context"
	"sort"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cimena/cinecast/internal/log"
)

type fakeKeyValue struct {
	value     string
	createRev int64
	modRev    int64
}

// fakeClient is an in-memory Client. Watch returns a channel the test feeds
// through emitPut / emitDelete.
type fakeClient struct {
	mu        gosync.Mutex
	data      map[string]fakeKeyValue
	rev       int64
	nextLease clientv3.LeaseID
	granted   []clientv3.LeaseID
	revoked   []clientv3.LeaseID
	keepAlive chan *clientv3.LeaseKeepAliveResponse
	watchCh   chan clientv3.WatchResponse
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]fakeKeyValue{}}
}

func (f *fakeClient) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	op := clientv3.OpGet(key, opts...)
	resp := &clientv3.GetResponse{Header: &pb.ResponseHeader{Revision: f.rev}}

	if op.RangeBytes() == nil {
		if kv, ok := f.data[key]; ok {
			resp.Kvs = append(resp.Kvs, f.pbKV(key, kv))
		}
		return resp, nil
	}
	// Real etcd returns range reads in key order (List relies on WithSort);
	// a Go map does not, so collect and sort the matching keys.
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if strings.HasPrefix(k, key) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		resp.Kvs = append(resp.Kvs, f.pbKV(k, f.data[k]))
	}
	return resp, nil
}

func (f *fakeClient) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.put(key, val)
	return &clientv3.PutResponse{}, nil
}

func (f *fakeClient) Delete(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.data, key)
	return &clientv3.DeleteResponse{}, nil
}

func (f *fakeClient) Txn(_ context.Context) clientv3.Txn {
	return &fakeTxn{client: f}
}

func (f *fakeClient) Watch(_ context.Context, _ string, _ ...clientv3.OpOption) clientv3.WatchChan {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watchCh = make(chan clientv3.WatchResponse, 16)
	return f.watchCh
}

func (f *fakeClient) Grant(_ context.Context, _ int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextLease++
	f.granted = append(f.granted, f.nextLease)
	return &clientv3.LeaseGrantResponse{ID: f.nextLease}, nil
}

func (f *fakeClient) KeepAlive(_ context.Context, _ clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keepAlive = make(chan *clientv3.LeaseKeepAliveResponse, 1)
	return f.keepAlive, nil
}

func (f *fakeClient) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.revoked = append(f.revoked, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (f *fakeClient) put(key, val string) {
	f.rev++
	kv, exists := f.data[key]
	if !exists {
		kv.createRev = f.rev
	}
	kv.value = val
	kv.modRev = f.rev
	f.data[key] = kv
}

func (f *fakeClient) pbKV(key string, kv fakeKeyValue) *mvccpb.KeyValue {
	return &mvccpb.KeyValue{
		Key:            []byte(key),
		Value:          []byte(kv.value),
		CreateRevision: kv.createRev,
		ModRevision:    kv.modRev,
	}
}

func (f *fakeClient) emitPut(key, val string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watchCh <- clientv3.WatchResponse{Events: []*clientv3.Event{{
		Type: mvccpb.PUT,
		Kv:   &mvccpb.KeyValue{Key: []byte(key), Value: []byte(val)},
	}}}
}

func (f *fakeClient) emitDelete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watchCh <- clientv3.WatchResponse{Events: []*clientv3.Event{{
		Type: mvccpb.DELETE,
		Kv:   &mvccpb.KeyValue{Key: []byte(key)},
	}}}
}

type fakeTxn struct {
	client *fakeClient
	cmps   []clientv3.Cmp
	then   []clientv3.Op
}

func (t *fakeTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

func (t *fakeTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.then = append(t.then, ops...)
	return t
}

func (t *fakeTxn) Else(_ ...clientv3.Op) clientv3.Txn {
	return t
}

func (t *fakeTxn) Commit() (*clientv3.TxnResponse, error) {
	t.client.mu.Lock()
	defer t.client.mu.Unlock()

	for i := range t.cmps {
		cmp := (*pb.Compare)(&t.cmps[i])
		kv := t.client.data[string(cmp.Key)]
		var actual int64
		switch cmp.Target {
		case pb.Compare_CREATE:
			actual = kv.createRev
		case pb.Compare_MOD:
			actual = kv.modRev
		}
		var expected int64
		switch cmp.Target {
		case pb.Compare_CREATE:
			expected = cmp.GetCreateRevision()
		case pb.Compare_MOD:
			expected = cmp.GetModRevision()
		}
		if actual != expected {
			return &clientv3.TxnResponse{Succeeded: false}, nil
		}
	}

	for _, op := range t.then {
		switch {
		case op.IsPut():
			t.client.put(string(op.KeyBytes()), string(op.ValueBytes()))
		case op.IsDelete():
			delete(t.client.data, string(op.KeyBytes()))
		}
	}
	return &clientv3.TxnResponse{Succeeded: true}, nil
}

func connectTestStore(t *testing.T) (*fakeClient, Store) {
	t.Helper()

	client := newFakeClient()
	store, err := Connect(context.Background(), client, 10*time.Second, log.NewTest(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return client, store
}

func TestGetAbsentKey(t *testing.T) {
	_, store := connectTestStore(t)

	kv, err := store.Get(context.Background(), "livestreams/online")
	require.NoError(t, err)
	require.Nil(t, kv)
}

func TestPutThenGet(t *testing.T) {
	_, store := connectTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "signaling/broadcaster", []byte(`{"started":false}`)))

	kv, err := store.Get(ctx, "signaling/broadcaster")
	require.NoError(t, err)
	require.NotNil(t, kv)
	require.Equal(t, `{"started":false}`, string(kv.Value))
	require.NotZero(t, kv.ModRev)
}

func TestListSortedByKey(t *testing.T) {
	_, store := connectTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "livestreams/links/b", []byte("2")))
	require.NoError(t, store.Put(ctx, "livestreams/links/a", []byte("1")))
	require.NoError(t, store.Put(ctx, "livestreams/online", []byte("x")))

	kvs, err := store.List(ctx, "livestreams/links/")
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	require.Equal(t, "livestreams/links/a", kvs[0].Key)
	require.Equal(t, "livestreams/links/b", kvs[1].Key)
}

func TestPutIfRevisionMustNotExist(t *testing.T) {
	_, store := connectTestStore(t)
	ctx := context.Background()

	ok, err := store.PutIfRevision(ctx, "signaling/broadcaster", []byte("a"), 0)
	require.NoError(t, err)
	require.True(t, ok)

	// second creation loses
	ok, err = store.PutIfRevision(ctx, "signaling/broadcaster", []byte("b"), 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutIfRevisionStaleLoses(t *testing.T) {
	_, store := connectTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "signaling/broadcaster", []byte("a")))
	kv, err := store.Get(ctx, "signaling/broadcaster")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "signaling/broadcaster", []byte("b")))

	ok, err := store.PutIfRevision(ctx, "signaling/broadcaster", []byte("c"), kv.ModRev)
	require.NoError(t, err)
	require.False(t, ok)

	cur, err := store.Get(ctx, "signaling/broadcaster")
	require.NoError(t, err)
	require.Equal(t, "b", string(cur.Value))
}

func TestPutIfRevisionMatches(t *testing.T) {
	_, store := connectTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "signaling/broadcaster", []byte("a")))
	kv, err := store.Get(ctx, "signaling/broadcaster")
	require.NoError(t, err)

	ok, err := store.PutIfRevision(ctx, "signaling/broadcaster", []byte("b"), kv.ModRev)
	require.NoError(t, err)
	require.True(t, ok)

	cur, err := store.Get(ctx, "signaling/broadcaster")
	require.NoError(t, err)
	require.Equal(t, "b", string(cur.Value))
}

func TestDeleteIfRevision(t *testing.T) {
	_, store := connectTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "signaling/viewers/v1", []byte("a")))
	kv, err := store.Get(ctx, "signaling/viewers/v1")
	require.NoError(t, err)

	// refreshed in between, delete must lose
	require.NoError(t, store.Put(ctx, "signaling/viewers/v1", []byte("b")))
	ok, err := store.DeleteIfRevision(ctx, "signaling/viewers/v1", kv.ModRev)
	require.NoError(t, err)
	require.False(t, ok)

	kv, err = store.Get(ctx, "signaling/viewers/v1")
	require.NoError(t, err)
	require.NotNil(t, kv)

	ok, err = store.DeleteIfRevision(ctx, "signaling/viewers/v1", kv.ModRev)
	require.NoError(t, err)
	require.True(t, ok)

	kv, err = store.Get(ctx, "signaling/viewers/v1")
	require.NoError(t, err)
	require.Nil(t, kv)
}

func TestMintKeyLeavesNoTrace(t *testing.T) {
	client, store := connectTestStore(t)
	ctx := context.Background()

	first, err := store.MintKey(ctx, "signaling/temp")
	require.NoError(t, err)
	second, err := store.MintKey(ctx, "signaling/temp")
	require.NoError(t, err)

	require.Len(t, first, 20)
	require.NotEqual(t, first, second)
	require.Less(t, first, second)

	kvs, err := store.List(ctx, "signaling/temp")
	require.NoError(t, err)
	require.Empty(t, kvs)
	_ = client
}

func TestWatchSnapshotThenLiveEvents(t *testing.T) {
	client, store := connectTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.Put(ctx, "livestreams/links/a", []byte("1")))

	ch := store.Watch(ctx, "livestreams/")

	recv := func() Event {
		select {
		case ev := <-ch:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}

	require.Equal(t, EventReset, recv().Type)

	snap := recv()
	require.Equal(t, EventPut, snap.Type)
	require.Equal(t, "livestreams/links/a", snap.Key)
	require.Equal(t, "1", string(snap.Value))

	require.Equal(t, EventSynced, recv().Type)

	client.emitPut("livestreams/online", "y")
	live := recv()
	require.Equal(t, EventPut, live.Type)
	require.Equal(t, "livestreams/online", live.Key)

	client.emitDelete("livestreams/online")
	gone := recv()
	require.Equal(t, EventDelete, gone.Type)
	require.Equal(t, "livestreams/online", gone.Key)
}

func TestWatchClosesOnContextCancel(t *testing.T) {
	_, store := connectTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := store.Watch(ctx, "livestreams/")
	cancel()

	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseRevokesSessionLease(t *testing.T) {
	client := newFakeClient()
	store, err := Connect(context.Background(), client, 10*time.Second, log.NewTest(t))
	require.NoError(t, err)

	require.NoError(t, store.Close(context.Background()))
	require.Equal(t, client.granted, client.revoked)
}

func TestLeaseRecreatedAfterKeepAliveLoss(t *testing.T) {
	client, _ := connectTestStore(t)

	client.mu.Lock()
	ch := client.keepAlive
	client.mu.Unlock()
	close(ch)

	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.granted) >= 2
	}, 3*time.Second, 20*time.Millisecond)
}
