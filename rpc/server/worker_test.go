package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dInv/lib/auth"
	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/lib/store/sqlstore"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

type fakeReplicator struct {
	mu    sync.Mutex
	calls int
	err   error
	// hook runs inside Replicate (e.g. to break the store file)
	hook func(path string)
}

func (f *fakeReplicator) Replicate(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.hook != nil {
		f.hook(path)
	}
	return f.err
}

func (f *fakeReplicator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestDatabase creates a database with the user esnyder/abcd123
func newTestDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.db")
	require.NoError(t, sqlstore.CreateSchema(path))
	hash, err := auth.HashPassword("abcd123", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, sqlstore.AddUser(path, "esnyder", hash))
	return path
}

type runningWorker struct {
	requests *queue.Mailbox[common.Request]
	worker   *Worker
	done     chan error
	cancel   context.CancelFunc
}

func startWorker(t *testing.T, s store.IItemStore, replicator IReplicator) *runningWorker {
	t.Helper()
	requests := queue.NewMailbox[common.Request]()
	w := NewWorker(s, NewIItemStoreAdapter(auth.NewBcryptVerifier()), replicator, requests)
	ctx, cancel := context.WithCancel(context.Background())

	rw := &runningWorker{requests: requests, worker: w, done: make(chan error, 1), cancel: cancel}
	go func() {
		rw.done <- w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-rw.done:
		case <-time.After(5 * time.Second):
		}
	})
	return rw
}

func (rw *runningWorker) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rw.done:
		rw.done <- err
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
		return nil
	}
}

func call(t *testing.T, requests *queue.Mailbox[common.Request], raw []byte) string {
	t.Helper()
	replies := queue.NewMailbox[common.Reply]()
	require.True(t, requests.Put(common.NewRequest(raw, replies)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := replies.Wait(ctx)
	require.NoError(t, err)
	return reply.String()
}

var sword = store.Item{
	Name:        "Sword",
	Armor:       0,
	Health:      0,
	Mana:        0,
	SellPrice:   150,
	Damage:      12,
	CritChance:  0.25,
	Range:       1,
	Description: "A sharp blade",
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestWorkerItemCommands(t *testing.T) {
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), nil)

	// empty inventory
	assert.Equal(t, "SUCCESS \x1d", call(t, rw.requests, common.NewGetAllRequest()))

	reply := call(t, rw.requests, common.NewPutRequest(sword))
	id, err := common.ParseIDReply([]byte(reply))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	items, err := common.ParseItemReply([]byte(call(t, rw.requests, common.NewGetRequest(id))))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Sword", items[0].Name)
	assert.Equal(t, 12, items[0].Damage)
	assert.InDelta(t, 0.25, items[0].CritChance, 1e-9)

	modified := sword
	modified.ID = id
	modified.Damage = 20
	assert.Equal(t, "SUCCESS", call(t, rw.requests, common.NewModRequest(modified)))

	items, err = common.ParseItemReply([]byte(call(t, rw.requests, common.NewGetAllRequest())))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 20, items[0].Damage)

	assert.Equal(t, "SUCCESS", call(t, rw.requests, common.NewDelRequest(id)))
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewDelRequest(id)))
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewGetRequest(id)))
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewModRequest(modified)))
}

func TestWorkerRejectsBadRequests(t *testing.T) {
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), nil)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unknown verb", "FOO 1", "FAILURE UNKNOWN_COMMAND"},
		{"lowercase verb", "get ALL", "FAILURE UNKNOWN_COMMAND"},
		{"non numeric id", "GET abc", "FAILURE"},
		{"missing id", "DEL", "FAILURE"},
		{"empty put", "PUT ", "FAILURE"},
		{"auth without password", "AUTH esnyder", "FAILURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, rw.requests, []byte(tt.raw)))
		})
	}
}

func TestWorkerAuth(t *testing.T) {
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), nil)

	assert.Equal(t, "SUCCESS", call(t, rw.requests, common.NewAuthRequest("esnyder", "abcd123")))
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewAuthRequest("esnyder", "wrong")))
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewAuthRequest("nobody", "abcd123")))
}

func TestWorkerConcurrentPuts(t *testing.T) {
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), nil)

	const n = 20
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies := queue.NewMailbox[common.Reply]()
			if !rw.requests.Put(common.NewRequest(common.NewPutRequest(sword), replies)) {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reply, err := replies.Wait(ctx)
			if err != nil {
				return
			}
			ids[i], _ = common.ParseIDReply(reply.Payload)
		}(i)
	}
	wg.Wait()

	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id)
	}

	items, err := common.ParseItemReply([]byte(call(t, rw.requests, common.NewGetAllRequest())))
	require.NoError(t, err)
	assert.Len(t, items, n)
}

func TestWorkerSync(t *testing.T) {
	replicator := &fakeReplicator{}
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), replicator)

	_, err := common.ParseIDReply([]byte(call(t, rw.requests, common.NewPutRequest(sword))))
	require.NoError(t, err)

	assert.Equal(t, "SUCCESS", call(t, rw.requests, common.NewSyncRequest()))
	assert.Equal(t, 1, replicator.Calls())

	// a failed replication keeps the store usable
	replicator.mu.Lock()
	replicator.err = errors.New("peer unreachable")
	replicator.mu.Unlock()
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewSyncRequest()))
	assert.Equal(t, 2, replicator.Calls())

	items, err := common.ParseItemReply([]byte(call(t, rw.requests, common.NewGetAllRequest())))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestWorkerScheduledSync(t *testing.T) {
	replicator := &fakeReplicator{}
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), replicator)

	require.True(t, rw.requests.Put(common.NewRequest(common.NewSyncRequest(), nil)))
	// requests are executed in order, the SYNC is done once this is answered
	call(t, rw.requests, common.NewGetAllRequest())
	assert.Equal(t, 1, replicator.Calls())
}

func TestWorkerSyncWithoutPeer(t *testing.T) {
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), nil)
	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewSyncRequest()))
	assert.Equal(t, "SUCCESS \x1d", call(t, rw.requests, common.NewGetAllRequest()))
}

func TestWorkerReopenFailureIsFatal(t *testing.T) {
	replicator := &fakeReplicator{hook: func(path string) {
		_ = os.Remove(path)
	}}
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), replicator)

	assert.Equal(t, "FAILURE", call(t, rw.requests, common.NewSyncRequest()))
	assert.Error(t, rw.wait(t))
	assert.True(t, rw.requests.IsClosed())
}

func TestWorkerTerm(t *testing.T) {
	rw := startWorker(t, sqlstore.NewSQLStore(newTestDatabase(t)), nil)

	terminated := make(chan struct{})
	rw.worker.OnTerm(func() { close(terminated) })

	assert.Equal(t, "SUCCESS", call(t, rw.requests, common.NewTermRequest()))
	assert.NoError(t, rw.wait(t))

	select {
	case <-terminated:
	case <-time.After(time.Second):
		t.Fatal("OnTerm was not called")
	}
	assert.False(t, rw.requests.Put(common.NewRequest(common.NewGetAllRequest(), nil)))
}

func TestWorkerFailsQueuedRequestsOnShutdown(t *testing.T) {
	requests := queue.NewMailbox[common.Request]()
	replies := queue.NewMailbox[common.Reply]()
	for i := 0; i < 3; i++ {
		require.True(t, requests.Put(common.NewRequest(common.NewGetAllRequest(), replies)))
	}

	w := NewWorker(sqlstore.NewSQLStore(newTestDatabase(t)), NewIItemStoreAdapter(auth.NewBcryptVerifier()), nil, requests)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	for i := 0; i < 3; i++ {
		reply, ok := replies.Get()
		require.True(t, ok)
		assert.Equal(t, "FAILURE SHUTDOWN", reply.String())
	}
	assert.True(t, requests.IsClosed())
}

func TestWorkerInvalidStore(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		requests := queue.NewMailbox[common.Request]()
		path := filepath.Join(t.TempDir(), "missing.db")
		w := NewWorker(sqlstore.NewSQLStore(path), NewIItemStoreAdapter(auth.NewBcryptVerifier()), nil, requests)
		assert.Error(t, w.Run(context.Background()))
		assert.True(t, requests.IsClosed())
	})

	t.Run("wrong schema", func(t *testing.T) {
		requests := queue.NewMailbox[common.Request]()
		path := filepath.Join(t.TempDir(), "empty.db")
		require.NoError(t, os.WriteFile(path, nil, 0o600))
		w := NewWorker(sqlstore.NewSQLStore(path), NewIItemStoreAdapter(auth.NewBcryptVerifier()), nil, requests)
		assert.Error(t, w.Run(context.Background()))
	})
}
