package server

import (
	"context"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/rpc/common"
)

// IServerAdapter executes a single command against the store.
// It is only ever called by the database worker, so it may use the store without locking.
type IServerAdapter interface {
	// Handle executes cmd and returns the reply. Errors are reported as FAILURE replies.
	Handle(cmd *common.Command, store store.IItemStore) (resp *common.Reply)
}

// IReplicator streams a closed store file to the backup peer
type IReplicator interface {
	// Replicate sends the file at path. It returns nil only if the peer confirmed the copy.
	Replicate(ctx context.Context, path string) error
}
