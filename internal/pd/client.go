package pd

import (
	"context"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"

	regionpkg "nyxstore/internal/region"
)

// Client is the placement-service capability consumed by a store node. Every
// call blocks until the placement service answers or the transport gives up;
// none of them retries internally. Implementations must be safe for
// concurrent use.
type Client interface {
	// AskSplit asks the placement service to authorise splitting region and
	// allocate identifiers for the new region and its peers.
	AskSplit(ctx context.Context, region regionpkg.Region) (*AskSplitResponse, error)
	// RegionHeartbeat reports the leader's view of region. The response may
	// carry one scheduling directive.
	RegionHeartbeat(ctx context.Context, region regionpkg.Region, leader regionpkg.Peer, downPeers []PeerStats, pendingPeers []regionpkg.Peer) (*RegionHeartbeatResponse, error)
	// StoreHeartbeat reports store level statistics.
	StoreHeartbeat(ctx context.Context, stats StoreStats) error
	// ReportSplit notifies the placement service that a split finished.
	ReportSplit(ctx context.Context, left, right regionpkg.Region) error
	// GetRegionByID returns the placement service's copy of a region, or
	// nil without error when the region is unknown.
	GetRegionByID(ctx context.Context, id regionpkg.ID) (*regionpkg.Region, error)
}

// AskSplitResponse carries identifiers allocated for a split. NewPeerIDs is
// expected to line up one-to-one with the splitting region's peers.
type AskSplitResponse struct {
	NewRegionID regionpkg.ID `json:"new_region_id"`
	NewPeerIDs  []uint64     `json:"new_peer_ids"`
}

// ChangePeer asks the region leader to add or remove a peer.
type ChangePeer struct {
	ChangeType raftpb.ConfChangeType `json:"change_type"`
	Peer       regionpkg.Peer        `json:"peer"`
}

// TransferLeader asks the region leader to hand leadership to Peer.
type TransferLeader struct {
	Peer regionpkg.Peer `json:"peer"`
}

// RegionHeartbeatResponse conveys at most one scheduling directive back to the
// region leader. Nil fields mean no action.
type RegionHeartbeatResponse struct {
	ChangePeer     *ChangePeer     `json:"change_peer,omitempty"`
	TransferLeader *TransferLeader `json:"transfer_leader,omitempty"`
}

// PeerStats describes a peer the leader considers down.
type PeerStats struct {
	Peer        regionpkg.Peer `json:"peer"`
	DownSeconds uint64         `json:"down_seconds"`
}

// StoreStats aggregates store level information reported on every store
// heartbeat.
type StoreStats struct {
	StoreID            uint64    `json:"store_id"`
	Address            string    `json:"address,omitempty"`
	Capacity           uint64    `json:"capacity"`
	Available          uint64    `json:"available"`
	UsedSize           uint64    `json:"used_size"`
	RegionCount        uint32    `json:"region_count"`
	SendingSnapCount   uint32    `json:"sending_snap_count"`
	ReceivingSnapCount uint32    `json:"receiving_snap_count"`
	ApplyingSnapCount  uint32    `json:"applying_snap_count"`
	BytesWritten       uint64    `json:"bytes_written"`
	IsBusy             bool      `json:"is_busy"`
	StartTime          time.Time `json:"start_time"`
}
