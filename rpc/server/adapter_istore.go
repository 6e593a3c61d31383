package server

import (
	"errors"

	"github.com/ValentinKolb/dInv/lib/auth"
	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/ValentinKolb/dInv/rpc/common"
)

// NewIItemStoreAdapter creates the adapter for the item commands (AUTH, GET, PUT, MOD, DEL)
func NewIItemStoreAdapter(verifier auth.IVerifier) IServerAdapter {
	return &iItemStoreAdapterImpl{verifier: verifier}
}

type iItemStoreAdapterImpl struct {
	verifier auth.IVerifier
}

func (adapter *iItemStoreAdapterImpl) Handle(cmd *common.Command, s store.IItemStore) *common.Reply {
	// Check for nil store
	if s == nil {
		workerLog.Errorf("handler: store is nil")
		return common.NewFailureReply("")
	}

	if cmd.Err != nil {
		workerLog.Debugf("rejecting %s: %v", cmd.CmdType, cmd.Err)
		return common.NewFailureReply("")
	}

	// Handle different command types
	switch cmd.CmdType {
	case common.CmdTAuth:
		return adapter.authenticate(cmd, s)

	case common.CmdTGetAll:
		items, err := s.GetAll()
		if err != nil {
			return failure(cmd, err)
		}
		return common.NewBatchReply(items)

	case common.CmdTGet:
		item, err := s.Get(cmd.ID)
		if err != nil {
			return failure(cmd, err)
		}
		return common.NewItemReply(item)

	case common.CmdTPut:
		id, err := s.Put(cmd.Item)
		if err != nil {
			return failure(cmd, err)
		}
		workerLog.Debugf("inserted item %d", id)
		return common.NewIDReply(id)

	case common.CmdTMod:
		if err := s.Mod(cmd.Item); err != nil {
			return failure(cmd, err)
		}
		return common.NewSuccessReply()

	case common.CmdTDel:
		if err := s.Del(cmd.ID); err != nil {
			return failure(cmd, err)
		}
		return common.NewSuccessReply()

	default:
		workerLog.Debugf("unsupported command %q", truncateRaw(cmd.Raw))
		return common.NewFailureReply(common.ReasonUnknownCommand)
	}
}

func (adapter *iItemStoreAdapterImpl) authenticate(cmd *common.Command, s store.IItemStore) *common.Reply {
	hash, err := s.PasswordHash(cmd.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return failure(cmd, err)
	}
	// an unknown user verifies against an empty hash, which costs the same and never matches
	if !adapter.verifier.Verify(hash, cmd.Password) {
		workerLog.Infof("failed login for user %q", cmd.Username)
		return common.NewFailureReply("")
	}
	workerLog.Debugf("user %q logged in", cmd.Username)
	return common.NewSuccessReply()
}

// failure logs a store error and converts it into a FAILURE reply
func failure(cmd *common.Command, err error) *common.Reply {
	if errors.Is(err, store.ErrNotFound) {
		workerLog.Debugf("%s: %v", cmd.CmdType, err)
	} else {
		workerLog.Errorf("%s failed: %v", cmd.CmdType, err)
	}
	return common.NewFailureReply("")
}

func truncateRaw(raw []byte) string {
	if len(raw) > 32 {
		return string(raw[:32]) + "..."
	}
	return string(raw)
}
