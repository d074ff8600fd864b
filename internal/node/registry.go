package node

import (
	"github.com/google/btree"
	"go.uber.org/zap"

	"nyxstore/internal/pd"
	"nyxstore/internal/raftstore"
	regionpkg "nyxstore/internal/region"
)

// RegionTable tracks the replicas hosted on this store, ordered by region id.
// It is owned by the event loop and is not safe for concurrent use.
type RegionTable struct {
	peers *btree.BTreeG[LocalPeer]
}

func byRegionID(a, b LocalPeer) bool { return a.Region.ID < b.Region.ID }

func NewRegionTable() *RegionTable {
	return &RegionTable{peers: btree.NewG[LocalPeer](8, byRegionID)}
}

// Put adds or replaces the replica of region.
func (t *RegionTable) Put(region regionpkg.Region, peer regionpkg.Peer) {
	t.peers.ReplaceOrInsert(LocalPeer{Region: region.Clone(), Peer: peer})
}

// Remove forgets the replica of region id.
func (t *RegionTable) Remove(id regionpkg.ID) {
	t.peers.Delete(LocalPeer{Region: regionpkg.Region{ID: id}})
}

// Get returns the replica of region id.
func (t *RegionTable) Get(id regionpkg.ID) (LocalPeer, bool) {
	return t.peers.Get(LocalPeer{Region: regionpkg.Region{ID: id}})
}

func (t *RegionTable) Len() int { return t.peers.Len() }

// LocalPeers implements RegionSource.
func (t *RegionTable) LocalPeers() []LocalPeer {
	out := make([]LocalPeer, 0, t.peers.Len())
	t.peers.Ascend(func(lp LocalPeer) bool {
		out = append(out, lp)
		return true
	})
	return out
}

// StoreStats implements StatsProvider with the information the table has.
func (t *RegionTable) StoreStats() pd.StoreStats {
	return pd.StoreStats{RegionCount: uint32(t.peers.Len())}
}

// TableApplier stands in for the Raft layer in a standalone process. It
// applies tombstones by dropping the replica and logs everything else.
type TableApplier struct {
	Table  *RegionTable
	Logger *zap.Logger
}

func (a TableApplier) Apply(msg raftstore.Msg) error {
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch msg.Type {
	case raftstore.MsgRaftMessage:
		m := msg.RaftMessage
		if m == nil || !m.IsTombstone {
			return nil
		}
		lp, ok := a.Table.Get(m.RegionID)
		if !ok || lp.Peer.ID != m.ToPeer.ID {
			return nil
		}
		if regionpkg.IsEpochStale(m.RegionEpoch, lp.Region.Epoch) {
			logger.Info("ignore tombstone with stale epoch",
				zap.Uint64("region_id", uint64(m.RegionID)),
				zap.Stringer("epoch", m.RegionEpoch))
			return nil
		}
		a.Table.Remove(m.RegionID)
		logger.Info("peer destroyed", zap.Uint64("region_id", uint64(m.RegionID)), zap.Uint64("peer_id", m.ToPeer.ID))
	case raftstore.MsgRaftCmd:
		cmd := msg.RaftCmd
		if cmd == nil {
			return nil
		}
		if req := cmd.Request; req != nil && req.AdminRequest != nil {
			logger.Info("received admin command",
				zap.Uint64("region_id", uint64(req.Header.RegionID)),
				zap.Stringer("cmd_type", req.AdminRequest.CmdType),
				zap.Stringer("uuid", req.Header.UUID))
		}
		if cmd.Callback != nil {
			cmd.Callback(nil)
		}
	}
	return nil
}
