package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var workerLog = logger.GetLogger("worker")

// Worker is the database worker: the only goroutine that ever touches the store.
// It consumes the request mailbox, executes every request in arrival order and
// answers on the reply mailbox of the request.
type Worker struct {
	store      store.IItemStore
	adapter    IServerAdapter
	replicator IReplicator
	requests   *queue.Mailbox[common.Request]

	// onTerm is called after a TERM request was answered
	onTerm func()
}

// NewWorker creates a worker. replicator may be nil, SYNC then always fails.
func NewWorker(s store.IItemStore, adapter IServerAdapter, replicator IReplicator, requests *queue.Mailbox[common.Request]) *Worker {
	return &Worker{
		store:      s,
		adapter:    adapter,
		replicator: replicator,
		requests:   requests,
	}
}

// OnTerm registers the function called after a TERM request was answered
func (w *Worker) OnTerm(f func()) {
	w.onTerm = f
}

// Run opens and validates the store, then serves requests until ctx is done, the mailbox is closed
// or a TERM request arrives. Before returning it closes the mailbox, answers every request still
// queued with FAILURE and closes the store.
//
// A non-nil error is fatal: the store is missing, structurally invalid or could not be reopened
// after a replication.
func (w *Worker) Run(ctx context.Context) (err error) {
	if err := w.store.Open(); err != nil {
		w.drain()
		return fmt.Errorf("failed to open store %s: %w", w.store.Path(), err)
	}
	if err := w.store.ValidateSchema(); err != nil {
		w.drain()
		_ = w.store.Close()
		return fmt.Errorf("store %s is unusable: %w", w.store.Path(), err)
	}
	workerLog.Infof("serving store %s", w.store.Path())

	defer func() {
		w.drain()
		if cerr := w.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
		workerLog.Infof("worker stopped")
	}()

	for {
		// requests still queued at shutdown are failed by drain
		if ctx.Err() != nil {
			return nil
		}

		req, err := w.requests.Wait(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		stop, err := w.handle(ctx, req)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// handle executes a single request. stop is true after TERM.
func (w *Worker) handle(ctx context.Context, req *common.Request) (stop bool, err error) {
	var reply *common.Reply

	switch req.Cmd.CmdType {
	case common.CmdTTerm:
		workerLog.Infof("received TERM, shutting down")
		reply = common.NewSuccessReply()
		stop = true

	case common.CmdTSync:
		reply, err = w.sync(ctx, req.ReplyTo == nil)

	default:
		reply = w.adapter.Handle(&req.Cmd, w.store)
	}

	common.ObserveRequest(req.Cmd.CmdType, reply.Ok(), req.Enqueued)

	if req.ReplyTo != nil && !req.Respond(reply) {
		// the session gave up waiting (timeout) or is gone
		workerLog.Debugf("dropped reply to %s, session is gone", req.Cmd.CmdType)
	}

	if stop && w.onTerm != nil {
		w.onTerm()
	}
	return stop, err
}

// sync replicates the store to the backup peer. The store is closed while the file is streamed
// and reopened afterward no matter the outcome. Failing to reopen is fatal.
func (w *Worker) sync(ctx context.Context, scheduled bool) (*common.Reply, error) {
	source := "client"
	if scheduled {
		source = "timer"
	}

	if w.replicator == nil {
		workerLog.Warningf("SYNC (%s) ignored: no backup peer configured", source)
		return common.NewFailureReply(""), nil
	}

	start := time.Now()
	if err := w.store.Close(); err != nil {
		workerLog.Errorf("failed to close store before replication: %v", err)
		common.ObserveReplication(false)
		return common.NewFailureReply(""), w.reopen()
	}

	replErr := w.replicator.Replicate(ctx, w.store.Path())

	if err := w.reopen(); err != nil {
		return common.NewFailureReply(""), err
	}

	common.ObserveReplication(replErr == nil)
	if replErr != nil {
		workerLog.Warningf("replication (%s) failed after %s: %v", source, time.Since(start), replErr)
		return common.NewFailureReply(""), nil
	}
	workerLog.Infof("replication (%s) succeeded in %s", source, time.Since(start))
	return common.NewSuccessReply(), nil
}

func (w *Worker) reopen() error {
	if err := w.store.Open(); err != nil {
		return fmt.Errorf("failed to reopen store after replication: %w", err)
	}
	return nil
}

// drain closes the request mailbox and fails every request that will not be executed
func (w *Worker) drain() {
	n := w.requests.Drain(func(req *common.Request) {
		req.Respond(common.NewFailureReply(common.ReasonShutdown))
	})
	if n > 0 {
		workerLog.Infof("failed %d queued requests during shutdown", n)
	}
}
