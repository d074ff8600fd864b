package raftstore

import (
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/etcd/raft/v3/raftpb"

	regionpkg "nyxstore/internal/region"
)

// AdminCmdType enumerates administrative commands a store can be asked to
// propose on behalf of a region.
type AdminCmdType int

const (
	AdminInvalid AdminCmdType = iota
	AdminChangePeer
	AdminSplit
	AdminTransferLeader
)

func (t AdminCmdType) String() string {
	switch t {
	case AdminChangePeer:
		return "ChangePeer"
	case AdminSplit:
		return "Split"
	case AdminTransferLeader:
		return "TransferLeader"
	default:
		return "InvalidAdmin"
	}
}

// ChangePeerRequest adds or removes a single peer.
type ChangePeerRequest struct {
	ChangeType raftpb.ConfChangeType
	Peer       regionpkg.Peer
}

// SplitRequest splits a region at SplitKey. NewPeerIDs pairs up with the
// region's current peers in order.
type SplitRequest struct {
	SplitKey    []byte
	NewRegionID regionpkg.ID
	NewPeerIDs  []uint64
}

// TransferLeaderRequest hands leadership to Peer.
type TransferLeaderRequest struct {
	Peer regionpkg.Peer
}

// AdminRequest holds exactly one populated payload matching CmdType.
type AdminRequest struct {
	CmdType        AdminCmdType
	ChangePeer     *ChangePeerRequest
	Split          *SplitRequest
	TransferLeader *TransferLeaderRequest
}

func NewChangePeerRequest(changeType raftpb.ConfChangeType, peer regionpkg.Peer) *AdminRequest {
	return &AdminRequest{
		CmdType:    AdminChangePeer,
		ChangePeer: &ChangePeerRequest{ChangeType: changeType, Peer: peer},
	}
}

func NewSplitRequest(splitKey []byte, newRegionID regionpkg.ID, newPeerIDs []uint64) *AdminRequest {
	return &AdminRequest{
		CmdType: AdminSplit,
		Split: &SplitRequest{
			SplitKey:    append([]byte(nil), splitKey...),
			NewRegionID: newRegionID,
			NewPeerIDs:  append([]uint64(nil), newPeerIDs...),
		},
	}
}

func NewTransferLeaderRequest(peer regionpkg.Peer) *AdminRequest {
	return &AdminRequest{
		CmdType:        AdminTransferLeader,
		TransferLeader: &TransferLeaderRequest{Peer: peer},
	}
}

// RaftRequestHeader addresses a command to a region as seen at RegionEpoch.
type RaftRequestHeader struct {
	RegionID    regionpkg.ID
	RegionEpoch regionpkg.Epoch
	Peer        regionpkg.Peer
	UUID        uuid.UUID
}

// RaftCmdRequest is a command to be proposed through the region's Raft group.
type RaftCmdRequest struct {
	Header       RaftRequestHeader
	AdminRequest *AdminRequest
}

// NewAdminCmd wraps req into a command addressed to region through peer.
func NewAdminCmd(region regionpkg.Region, peer regionpkg.Peer, req *AdminRequest, id uuid.UUID) *RaftCmdRequest {
	return &RaftCmdRequest{
		Header: RaftRequestHeader{
			RegionID:    region.ID,
			RegionEpoch: region.Epoch,
			Peer:        peer,
			UUID:        id,
		},
		AdminRequest: req,
	}
}

// RaftMessage is a peer-to-peer protocol message. The coordination layer only
// produces the tombstone form, which tells ToPeer to destroy itself if its
// region epoch is not newer than RegionEpoch.
type RaftMessage struct {
	RegionID    regionpkg.ID
	FromPeer    regionpkg.Peer
	ToPeer      regionpkg.Peer
	RegionEpoch regionpkg.Epoch
	IsTombstone bool
}

// NewTombstoneMessage builds the message that garbage-collects a stale peer.
func NewTombstoneMessage(regionID regionpkg.ID, peer regionpkg.Peer, epoch regionpkg.Epoch) *RaftMessage {
	return &RaftMessage{
		RegionID:    regionID,
		FromPeer:    peer,
		ToPeer:      peer,
		RegionEpoch: epoch,
		IsTombstone: true,
	}
}

// Callback receives the outcome of a proposed command.
type Callback func(err error)

// RaftCmd pairs a command with its completion callback.
type RaftCmd struct {
	Request  *RaftCmdRequest
	Callback Callback
}

// MsgType tags the payload carried by Msg.
type MsgType int

const (
	MsgRaftCmd MsgType = iota + 1
	MsgRaftMessage
)

func (t MsgType) String() string {
	switch t {
	case MsgRaftCmd:
		return "RaftCmd"
	case MsgRaftMessage:
		return "RaftMessage"
	default:
		return fmt.Sprintf("MsgType(%d)", int(t))
	}
}

// Msg is what the consensus loop receives on its inbound queue.
type Msg struct {
	Type        MsgType
	RaftCmd     *RaftCmd
	RaftMessage *RaftMessage
}

func NewRaftCmdMsg(req *RaftCmdRequest, cb Callback) Msg {
	if cb == nil {
		cb = func(error) {}
	}
	return Msg{Type: MsgRaftCmd, RaftCmd: &RaftCmd{Request: req, Callback: cb}}
}

func NewRaftMessageMsg(m *RaftMessage) Msg {
	return Msg{Type: MsgRaftMessage, RaftMessage: m}
}

// RegionID returns the region the message is addressed to.
func (m Msg) RegionID() regionpkg.ID {
	switch m.Type {
	case MsgRaftCmd:
		if m.RaftCmd != nil && m.RaftCmd.Request != nil {
			return m.RaftCmd.Request.Header.RegionID
		}
	case MsgRaftMessage:
		if m.RaftMessage != nil {
			return m.RaftMessage.RegionID
		}
	}
	return 0
}
