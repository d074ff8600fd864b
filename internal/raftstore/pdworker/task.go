package pdworker

import (
	"encoding/hex"
	"fmt"

	"nyxstore/internal/pd"
	regionpkg "nyxstore/internal/region"
)

// Task is one unit of work for the pd worker. The set of tasks is closed;
// Runner.Run switches over every implementation in this file.
type Task interface {
	fmt.Stringer
	// Kind names the PD request the task issues. It doubles as the metrics
	// label.
	Kind() string
	// routingKey picks the worker that runs the task.
	routingKey() uint64
}

const (
	kindAskSplit       = "ask split"
	kindHeartbeat      = "heartbeat"
	kindStoreHeartbeat = "store heartbeat"
	kindReportSplit    = "report split"
	kindGetRegion      = "get region"
)

// AskSplit asks PD for identifiers to split Region at SplitKey.
type AskSplit struct {
	Region   regionpkg.Region
	SplitKey []byte
	Peer     regionpkg.Peer
}

func (t AskSplit) Kind() string       { return kindAskSplit }
func (t AskSplit) routingKey() uint64 { return uint64(t.Region.ID) }
func (t AskSplit) String() string {
	return fmt.Sprintf("ask split region %d with key %s", t.Region.ID, hex.EncodeToString(t.SplitKey))
}

// Heartbeat reports a region from its leader's point of view.
type Heartbeat struct {
	Region       regionpkg.Region
	Peer         regionpkg.Peer
	DownPeers    []pd.PeerStats
	PendingPeers []regionpkg.Peer
}

func (t Heartbeat) Kind() string       { return kindHeartbeat }
func (t Heartbeat) routingKey() uint64 { return uint64(t.Region.ID) }
func (t Heartbeat) String() string {
	return fmt.Sprintf("heartbeat for region %d epoch %s, leader %d, %d down, %d pending",
		t.Region.ID, t.Region.Epoch, t.Peer.ID, len(t.DownPeers), len(t.PendingPeers))
}

// StoreHeartbeat reports store level statistics.
type StoreHeartbeat struct {
	Stats pd.StoreStats
}

func (t StoreHeartbeat) Kind() string       { return kindStoreHeartbeat }
func (t StoreHeartbeat) routingKey() uint64 { return 0 }
func (t StoreHeartbeat) String() string {
	return fmt.Sprintf("store heartbeat store %d, %d regions", t.Stats.StoreID, t.Stats.RegionCount)
}

// ReportSplit tells PD that Left was split into Left and Right.
type ReportSplit struct {
	Left  regionpkg.Region
	Right regionpkg.Region
}

func (t ReportSplit) Kind() string       { return kindReportSplit }
func (t ReportSplit) routingKey() uint64 { return uint64(t.Left.ID) }
func (t ReportSplit) String() string {
	return fmt.Sprintf("report split left %d epoch %s, right %d epoch %s",
		t.Left.ID, t.Left.Epoch, t.Right.ID, t.Right.Epoch)
}

// ValidatePeer checks whether Peer is still a member of Region according to
// PD.
type ValidatePeer struct {
	Region regionpkg.Region
	Peer   regionpkg.Peer
}

func (t ValidatePeer) Kind() string       { return kindGetRegion }
func (t ValidatePeer) routingKey() uint64 { return uint64(t.Region.ID) }
func (t ValidatePeer) String() string {
	return fmt.Sprintf("validate peer %d with region %d epoch %s", t.Peer.ID, t.Region.ID, t.Region.Epoch)
}
