package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/xid"
)

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 5 * time.Second
	lockRetry       = 15 * time.Millisecond
)

// releaseLock deletes the lock only when it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps each collection in a hash of id -> JSON document. Every write
// goes through Atomic, which holds a single store-wide lock and applies its
// buffered writes in one MULTI/EXEC.
type Store struct {
	client   *redis.Client
	prefix   string
	lockTTL  time.Duration
	lockWait time.Duration
	now      func() time.Time
}

func New(addr string, password string, db int, prefix string) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if prefix == "" {
		prefix = "dukkan"
	}
	return &Store{
		client:   client,
		prefix:   prefix,
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(collection string) string {
	return s.prefix + ":col:" + collection
}

func (s *Store) lockKey() string {
	return s.prefix + ":lock"
}

func (s *Store) GetAll(ctx context.Context, collection string) ([]store.Document, error) {
	return (&tx{s: s}).GetAll(ctx, collection)
}

func (s *Store) GetByID(ctx context.Context, collection string, id string) (store.Document, error) {
	return (&tx{s: s}).GetByID(ctx, collection, id)
}

func (s *Store) FindByField(ctx context.Context, collection string, field string, value any) ([]store.Document, error) {
	return (&tx{s: s}).FindByField(ctx, collection, field, value)
}

func (s *Store) Add(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	var out store.Document
	err := s.Atomic(ctx, func(ctx context.Context, b store.Backend) error {
		added, err := b.Add(ctx, collection, doc)
		out = added
		return err
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, collection string, id string, patch store.Document) (store.Document, error) {
	var out store.Document
	err := s.Atomic(ctx, func(ctx context.Context, b store.Backend) error {
		updated, err := b.Update(ctx, collection, id, patch)
		out = updated
		return err
	})
	return out, err
}

func (s *Store) Remove(ctx context.Context, collection string, id string) (bool, error) {
	var removed bool
	err := s.Atomic(ctx, func(ctx context.Context, b store.Backend) error {
		ok, err := b.Remove(ctx, collection, id)
		removed = ok
		return err
	})
	return removed, err
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Backend) error) error {
	token, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Released with a fresh context so a cancelled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseLock.Run(releaseCtx, s.client, []string{s.lockKey()}, token).Err()
	}()

	t := &tx{s: s, writes: make(map[string]map[string]store.Document)}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit(ctx)
}

func (s *Store) acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.client.SetNX(ctx, s.lockKey(), token, s.lockTTL).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: store lock is busy", store.ErrConflict)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

// tx reads through to Redis and overlays its own buffered writes. A nil
// document in writes marks a removal. With writes == nil it is a plain reader.
type tx struct {
	s      *Store
	writes map[string]map[string]store.Document
}

func (t *tx) pending(collection string) map[string]store.Document {
	if t.writes == nil {
		return nil
	}
	return t.writes[collection]
}

func (t *tx) buffer(collection string, id string, doc store.Document) {
	if t.writes[collection] == nil {
		t.writes[collection] = make(map[string]store.Document)
	}
	t.writes[collection][id] = doc
}

func (t *tx) GetAll(ctx context.Context, collection string) ([]store.Document, error) {
	raw, err := t.s.client.HGetAll(ctx, t.s.key(collection)).Result()
	if err != nil {
		return nil, err
	}
	merged := make(map[string]store.Document, len(raw))
	for id, doc := range raw {
		merged[id] = store.Document(doc)
	}
	for id, doc := range t.pending(collection) {
		if doc == nil {
			delete(merged, id)
			continue
		}
		merged[id] = doc
	}

	out := make([]store.Document, 0, len(merged))
	for _, doc := range merged {
		out = append(out, store.Clone(doc))
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := store.CreatedAt(out[i]), store.CreatedAt(out[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return store.ID(out[i]) < store.ID(out[j])
	})
	return out, nil
}

func (t *tx) GetByID(ctx context.Context, collection string, id string) (store.Document, error) {
	if doc, ok := t.pending(collection)[id]; ok {
		if doc == nil {
			return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, collection, id)
		}
		return store.Clone(doc), nil
	}
	raw, err := t.s.client.HGet(ctx, t.s.key(collection), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, err
	}
	return store.Document(raw), nil
}

func (t *tx) FindByField(ctx context.Context, collection string, field string, value any) ([]store.Document, error) {
	all, err := t.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]store.Document, 0)
	for _, doc := range all {
		if store.FieldEquals(doc, field, value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (t *tx) Add(ctx context.Context, collection string, doc store.Document) (store.Document, error) {
	if t.writes == nil {
		return nil, errors.New("redis store: write outside Atomic")
	}
	prepared, id, err := store.Prepare(doc, t.s.now(), func() string { return xid.New(domain.IDPrefix(collection)) })
	if err != nil {
		return nil, err
	}
	if _, err := t.GetByID(ctx, collection, id); err == nil {
		return nil, fmt.Errorf("%w: duplicate id %s in %s", store.ErrValidation, id, collection)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	t.buffer(collection, id, prepared)
	return store.Clone(prepared), nil
}

func (t *tx) Update(ctx context.Context, collection string, id string, patch store.Document) (store.Document, error) {
	if t.writes == nil {
		return nil, errors.New("redis store: write outside Atomic")
	}
	current, err := t.GetByID(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	merged, err := store.Merge(current, patch, t.s.now())
	if err != nil {
		return nil, err
	}
	t.buffer(collection, id, merged)
	return store.Clone(merged), nil
}

func (t *tx) Remove(ctx context.Context, collection string, id string) (bool, error) {
	if t.writes == nil {
		return false, errors.New("redis store: write outside Atomic")
	}
	if _, err := t.GetByID(ctx, collection, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	t.buffer(collection, id, nil)
	return true, nil
}

func (t *tx) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}
	_, err := t.s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for collection, docs := range t.writes {
			key := t.s.key(collection)
			for id, doc := range docs {
				if doc == nil {
					pipe.HDel(ctx, key, id)
					continue
				}
				pipe.HSet(ctx, key, id, string(doc))
			}
		}
		return nil
	})
	return err
}
