package pdgrpc

import (
	pd "nyxstore/internal/pd"
	regionpkg "nyxstore/internal/region"
)

// Request and response envelopes exchanged with the PD service.

type AskSplitRequest struct {
	Region regionpkg.Region `json:"region"`
}

type AskSplitResponse struct {
	NewRegionID uint64   `json:"new_region_id"`
	NewPeerIDs  []uint64 `json:"new_peer_ids"`
}

type RegionHeartbeatRequest struct {
	Region       regionpkg.Region `json:"region"`
	Leader       regionpkg.Peer   `json:"leader"`
	DownPeers    []pd.PeerStats   `json:"down_peers,omitempty"`
	PendingPeers []regionpkg.Peer `json:"pending_peers,omitempty"`
}

type RegionHeartbeatResponse struct {
	ChangePeer     *pd.ChangePeer     `json:"change_peer,omitempty"`
	TransferLeader *pd.TransferLeader `json:"transfer_leader,omitempty"`
}

type StoreHeartbeatRequest struct {
	Stats pd.StoreStats `json:"stats"`
}

type StoreHeartbeatResponse struct{}

type ReportSplitRequest struct {
	Left  regionpkg.Region `json:"left"`
	Right regionpkg.Region `json:"right"`
}

type ReportSplitResponse struct{}

type GetRegionRequest struct {
	RegionID uint64 `json:"region_id"`
}

// GetRegionResponse leaves Region nil when PD does not know the region.
type GetRegionResponse struct {
	Region *regionpkg.Region `json:"region,omitempty"`
}
