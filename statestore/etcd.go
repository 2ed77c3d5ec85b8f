package statestore

import (
	"context"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/retry"
)

// etcdStore implements Store on top of an etcd cluster. A single session
// lease backs every WithSessionLease write; the lease is kept alive in the
// background and recreated with backoff if it expires, so lease-bound keys
// behave like remove-on-disconnect presence records.
type etcdStore struct {
	client     Client
	sessionTTL time.Duration
	retryDelay time.Duration

	mu          gosync.RWMutex
	leaseID     clientv3.LeaseID
	keepAliveCh <-chan *clientv3.LeaseKeepAliveResponse

	cancel context.CancelFunc
	pushID *pushIDSource

	logger *log.Logger
}

// Connect establishes the session lease and starts its keep-alive monitor.
func Connect(ctx context.Context, client Client, sessionTTL time.Duration, logger *log.Logger) (Store, error) {
	if sessionTTL <= 0 {
		return nil, errors.New("session TTL must be greater than 0")
	}

	s := &etcdStore{
		client:     client,
		sessionTTL: sessionTTL,
		retryDelay: time.Second,
		pushID:     newPushIDSource(),
		logger:     logger,
	}

	ctx, s.cancel = context.WithCancel(ctx)
	if err := s.setupLease(ctx); err != nil {
		s.cancel()
		return nil, err
	}
	s.logger.Info("Store session established",
		log.Duration("ttl", s.sessionTTL))

	go s.monitorKeepAlive(ctx)
	return s, nil
}

func (s *etcdStore) Get(ctx context.Context, key string) (*KeyValue, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to get key: %s", key)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	kv := resp.Kvs[0]
	return &KeyValue{
		Key:    string(kv.Key),
		Value:  kv.Value,
		ModRev: kv.ModRevision,
	}, nil
}

func (s *etcdStore) List(ctx context.Context, prefix string) ([]KeyValue, error) {
	resp, err := s.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, errors.Wrapf(err, "fail to list prefix: %s", prefix)
	}

	kvs := make([]KeyValue, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		kvs = append(kvs, KeyValue{
			Key:    string(kv.Key),
			Value:  kv.Value,
			ModRev: kv.ModRevision,
		})
	}
	return kvs, nil
}

func (s *etcdStore) Put(ctx context.Context, key string, value []byte, opts ...PutOption) error {
	_, err := s.client.Put(ctx, key, string(value), s.opOptions(opts)...)
	return errors.Wrapf(err, "fail to put key: %s", key)
}

func (s *etcdStore) PutIfRevision(ctx context.Context, key string, value []byte, modRev int64, opts ...PutOption) (bool, error) {
	var cmp clientv3.Cmp
	if modRev == 0 {
		// key must not exist
		cmp = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	} else {
		cmp = clientv3.Compare(clientv3.ModRevision(key), "=", modRev)
	}

	resp, err := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(key, string(value), s.opOptions(opts)...)).
		Commit()
	if err != nil {
		return false, errors.Wrapf(err, "fail to put key: %s", key)
	}
	return resp.Succeeded, nil
}

func (s *etcdStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.Delete(ctx, key)
	return errors.Wrapf(err, "fail to delete key: %s", key)
}

func (s *etcdStore) DeleteIfRevision(ctx context.Context, key string, modRev int64) (bool, error) {
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", modRev)).
		Then(clientv3.OpDelete(key)).
		Commit()
	if err != nil {
		return false, errors.Wrapf(err, "fail to delete key: %s", key)
	}
	return resp.Succeeded, nil
}

func (s *etcdStore) MintKey(ctx context.Context, scratch string) (string, error) {
	id := s.pushID.Next(time.Now())
	key := scratch + "/" + id

	if _, err := s.client.Put(ctx, key, ""); err != nil {
		return "", errors.Wrapf(err, "fail to push scratch key: %s", key)
	}
	if _, err := s.client.Delete(ctx, key); err != nil {
		return "", errors.Wrapf(err, "fail to delete scratch key: %s", key)
	}
	return id, nil
}

func (s *etcdStore) Close(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.RLock()
	leaseID := s.leaseID
	s.mu.RUnlock()
	if leaseID == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.client.Revoke(ctx, leaseID); err != nil {
		return errors.Wrap(err, "fail to revoke session lease")
	}
	s.logger.Debug("Session lease revoked")
	return nil
}

func (s *etcdStore) opOptions(opts []PutOption) []clientv3.OpOption {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.sessionLease {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return []clientv3.OpOption{clientv3.WithLease(s.leaseID)}
}

func (s *etcdStore) setupLease(ctx context.Context) error {
	leaseResp, err := s.client.Grant(ctx, int64(s.sessionTTL.Seconds()))
	if err != nil {
		return errors.Wrap(err, "fail to create session lease")
	}

	keepAliveCh, err := s.client.KeepAlive(ctx, leaseResp.ID)
	if err != nil {
		return errors.Wrap(err, "fail to start session keep-alive")
	}

	s.mu.Lock()
	s.leaseID = leaseResp.ID
	s.keepAliveCh = keepAliveCh
	s.mu.Unlock()
	return nil
}

func (s *etcdStore) monitorKeepAlive(ctx context.Context) {
	for {
		s.mu.RLock()
		ch := s.keepAliveCh
		s.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case resp, ok := <-ch:
			if !ok || resp == nil {
				s.logger.Warn("Keep-alive channel closed, session lease may have expired")
				_ = s.recreateLease(ctx)
				continue
			}
			s.logger.Debug("Session lease kept alive", log.Int64("ttl", resp.TTL))
		}
	}
}

// recreateLease re-establishes the session after an expiry. Lease-bound keys
// written under the old lease are gone; their owners notice via their own
// watches and rewrite them.
func (s *etcdStore) recreateLease(ctx context.Context) error {
	operation := func() error {
		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		default:
		}

		s.logger.Info("Attempting to recreate session lease")
		if err := s.setupLease(ctx); err != nil {
			return errors.Wrap(err, "fail to recreate session lease")
		}
		s.logger.Info("Session lease recreated")
		return nil
	}

	b := retry.New(s.logger, 100*time.Millisecond, 10*time.Second, 0)
	return b.Do(ctx, operation)
}

func (s *etcdStore) Watch(ctx context.Context, prefix string) <-chan Event {
	out := make(chan Event)
	go s.watchLoop(ctx, prefix, out)
	return out
}

func (s *etcdStore) watchLoop(ctx context.Context, prefix string, out chan<- Event) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.watchOnce(ctx, prefix, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("Watch failed, restarting",
				log.String("prefix", prefix),
				log.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.retryDelay):
			}
		}
	}
}

// watchOnce replays the current snapshot under prefix between EventReset and
// EventSynced markers, then streams changes from the snapshot revision on.
func (s *etcdStore) watchOnce(ctx context.Context, prefix string, out chan<- Event) error {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return err
	}

	if err := emit(ctx, out, Event{Type: EventReset}); err != nil {
		return err
	}
	for _, kv := range resp.Kvs {
		ev := Event{Type: EventPut, Key: string(kv.Key), Value: kv.Value}
		if err := emit(ctx, out, ev); err != nil {
			return err
		}
	}
	if err := emit(ctx, out, Event{Type: EventSynced}); err != nil {
		return err
	}

	nextRev := resp.Header.Revision + 1
	s.logger.Debug("Watching prefix",
		log.String("prefix", prefix),
		log.Int64("revision", nextRev))

	watchChan := s.client.Watch(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithRev(nextRev))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case watchResp, ok := <-watchChan:
			if !ok {
				return errors.New("watch channel closed")
			}
			if watchResp.Err() != nil {
				return watchResp.Err()
			}
			for _, event := range watchResp.Events {
				ev := Event{Key: string(event.Kv.Key)}
				switch event.Type {
				case clientv3.EventTypePut:
					ev.Type = EventPut
					ev.Value = event.Kv.Value
				case clientv3.EventTypeDelete:
					ev.Type = EventDelete
				default:
					continue
				}
				if err := emit(ctx, out, ev); err != nil {
					return err
				}
			}
		}
	}
}

func emit(ctx context.Context, out chan<- Event, ev Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- ev:
		return nil
	}
}
