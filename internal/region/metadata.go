package region

import (
	"bytes"
	"fmt"
)

// ID uniquely identifies a Region.
type ID uint64

// KeyRange describes the inclusive-exclusive key range handled by a Region.
type KeyRange struct {
	Start []byte `json:"start,omitempty"`
	End   []byte `json:"end,omitempty"` // empty slice denotes infinity
}

// Epoch tracks structural changes of a Region.
type Epoch struct {
	// Version increases when the key range of a Region changes (split/merge).
	Version uint64 `json:"version"`
	// ConfVersion increases when the peer set changes (add/remove peers).
	ConfVersion uint64 `json:"conf_version"`
}

func (e Epoch) String() string {
	return fmt.Sprintf("{version:%d conf_version:%d}", e.Version, e.ConfVersion)
}

// IsEpochStale reports whether epoch lags behind check on either counter.
// The comparison is one-directional; callers that care about the reverse
// case must ask again with the arguments swapped.
func IsEpochStale(epoch, check Epoch) bool {
	return epoch.Version < check.Version || epoch.ConfVersion < check.ConfVersion
}

// PeerRole distinguishes voting members from learners.
type PeerRole int

const (
	// Voter is a full voting member of the Region's Raft group.
	Voter PeerRole = iota
	// Learner only receives logs; not part of quorum until promoted.
	Learner
)

func (r PeerRole) String() string {
	switch r {
	case Voter:
		return "voter"
	case Learner:
		return "learner"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Peer describes a Region replica hosted on a Store.
type Peer struct {
	ID      uint64   `json:"id"`
	StoreID uint64   `json:"store_id"`
	Role    PeerRole `json:"role,omitempty"`
}

// State captures the lifecycle of a Region.
type State int

const (
	// StateActive indicates the Region is serving traffic.
	StateActive State = iota
	// StateSplitting indicates the Region is splitting its key range.
	StateSplitting
	// StateMerging indicates the Region is merging with another Region.
	StateMerging
	// StateTombstone indicates the Region has been removed.
	StateTombstone
)

// Region aggregates metadata describing a single shard of the keyspace.
type Region struct {
	ID     ID       `json:"id"`
	Range  KeyRange `json:"range"`
	Epoch  Epoch    `json:"epoch"`
	Peers  []Peer   `json:"peers,omitempty"`
	State  State    `json:"state,omitempty"`
	Leader uint64   `json:"leader,omitempty"` // best-effort hint
}

// ContainsKey reports whether the region manages the provided key.
func (r *Region) ContainsKey(key []byte) bool {
	if r == nil {
		return false
	}
	if len(r.Range.Start) > 0 && bytes.Compare(key, r.Range.Start) < 0 {
		return false
	}
	if len(r.Range.End) > 0 && bytes.Compare(key, r.Range.End) >= 0 {
		return false
	}
	return true
}

// FindPeer returns the peer with the given id, or nil.
func (r *Region) FindPeer(peerID uint64) *Peer {
	if r == nil {
		return nil
	}
	for i := range r.Peers {
		if r.Peers[i].ID == peerID {
			return &r.Peers[i]
		}
	}
	return nil
}

// HasPeer reports whether peer is a member of the region. Membership means
// the same peer id hosted on the same store.
func (r *Region) HasPeer(peer Peer) bool {
	if r == nil {
		return false
	}
	for _, p := range r.Peers {
		if p.ID == peer.ID && p.StoreID == peer.StoreID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the Region metadata for safe mutation.
func (r *Region) Clone() Region {
	if r == nil {
		return Region{}
	}
	cp := *r
	cp.Range = KeyRange{
		Start: append([]byte(nil), r.Range.Start...),
		End:   append([]byte(nil), r.Range.End...),
	}
	if len(r.Peers) > 0 {
		cp.Peers = append([]Peer(nil), r.Peers...)
	}
	return cp
}
