package raftstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/raft/v3/raftpb"

	regionpkg "nyxstore/internal/region"
)

func TestNewSplitRequestCopiesInput(t *testing.T) {
	key := []byte("m")
	ids := []uint64{10, 11}
	req := NewSplitRequest(key, 2, ids)
	key[0] = 'x'
	ids[0] = 99

	require.Equal(t, AdminSplit, req.CmdType)
	assert.Equal(t, []byte("m"), req.Split.SplitKey)
	assert.Equal(t, []uint64{10, 11}, req.Split.NewPeerIDs)
	assert.Nil(t, req.ChangePeer)
	assert.Nil(t, req.TransferLeader)
}

func TestAdminCmdHeader(t *testing.T) {
	region := regionpkg.Region{ID: 4, Epoch: regionpkg.Epoch{Version: 1, ConfVersion: 2}}
	peer := regionpkg.Peer{ID: 7, StoreID: 3}
	id := uuid.New()
	cmd := NewAdminCmd(region, peer, NewChangePeerRequest(raftpb.ConfChangeAddLearnerNode, regionpkg.Peer{ID: 8}), id)

	assert.Equal(t, RaftRequestHeader{RegionID: 4, RegionEpoch: region.Epoch, Peer: peer, UUID: id}, cmd.Header)
	assert.Equal(t, "ChangePeer", cmd.AdminRequest.CmdType.String())

	msg := NewRaftCmdMsg(cmd, nil)
	assert.Equal(t, MsgRaftCmd, msg.Type)
	assert.Equal(t, regionpkg.ID(4), msg.RegionID())
	assert.NotPanics(t, func() { msg.RaftCmd.Callback(nil) })
}

func TestTombstoneMessage(t *testing.T) {
	peer := regionpkg.Peer{ID: 1, StoreID: 1}
	m := NewTombstoneMessage(5, peer, regionpkg.Epoch{Version: 2, ConfVersion: 1})
	assert.True(t, m.IsTombstone)
	assert.Equal(t, peer, m.FromPeer)
	assert.Equal(t, peer, m.ToPeer)

	msg := NewRaftMessageMsg(m)
	assert.Equal(t, regionpkg.ID(5), msg.RegionID())
	assert.Equal(t, "RaftMessage", msg.Type.String())
	assert.Equal(t, regionpkg.ID(0), Msg{}.RegionID())
	assert.Equal(t, "InvalidAdmin", AdminInvalid.String())
}
