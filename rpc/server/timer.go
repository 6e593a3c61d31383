package server

import (
	"context"
	"time"

	"github.com/ValentinKolb/dInv/lib/queue"
	"github.com/ValentinKolb/dInv/rpc/common"
)

// Timer periodically puts a fire-and-forget SYNC request on the request mailbox
type Timer struct {
	interval time.Duration
	requests *queue.Mailbox[common.Request]
}

// NewTimer creates a backup timer. An interval <= 0 disables it.
func NewTimer(interval time.Duration, requests *queue.Mailbox[common.Request]) *Timer {
	return &Timer{interval: interval, requests: requests}
}

// Run issues SYNC requests until ctx is done or the mailbox is closed
func (t *Timer) Run(ctx context.Context) error {
	if t.interval <= 0 {
		workerLog.Infof("backup timer disabled")
		return nil
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !t.requests.Put(common.NewRequest(common.NewSyncRequest(), nil)) {
				return nil
			}
			workerLog.Debugf("scheduled SYNC queued (%d requests pending)", t.requests.Len())
		}
	}
}
