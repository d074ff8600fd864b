// Package mockpd provides an in-memory pd.Client for tests and local runs.
// It answers from metadata it is fed and scripted responses; it never makes
// scheduling decisions of its own.
package mockpd

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"

	"nyxstore/internal/pd"
	regionpkg "nyxstore/internal/region"
)

// Method names used by SetError and Calls.
const (
	MethodAskSplit        = "AskSplit"
	MethodRegionHeartbeat = "RegionHeartbeat"
	MethodStoreHeartbeat  = "StoreHeartbeat"
	MethodReportSplit     = "ReportSplit"
	MethodGetRegion       = "GetRegion"
)

type regionItem struct {
	region regionpkg.Region
}

func byStartKey(a, b *regionItem) bool {
	return bytes.Compare(a.region.Range.Start, b.region.Range.Start) < 0
}

// Client is an in-memory pd.Client.
type Client struct {
	mu        sync.Mutex
	nextID    uint64
	regions   map[regionpkg.ID]regionpkg.Region
	byKey     *btree.BTreeG[*regionItem]
	operators map[regionpkg.ID]pd.RegionHeartbeatResponse
	errs      map[string]error
	calls     map[string]int
	stores    map[uint64]pd.StoreStats
	leaders   map[regionpkg.ID]regionpkg.Peer
	store     regionStore
}

var _ pd.Client = (*Client)(nil)

// New creates an empty client. Allocated ids start at firstID.
func New(firstID uint64) *Client {
	if firstID == 0 {
		firstID = 1000
	}
	return &Client{
		nextID:    firstID,
		regions:   make(map[regionpkg.ID]regionpkg.Region),
		byKey:     btree.NewG[*regionItem](8, byStartKey),
		operators: make(map[regionpkg.ID]pd.RegionHeartbeatResponse),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		stores:    make(map[uint64]pd.StoreStats),
		leaders:   make(map[regionpkg.ID]regionpkg.Peer),
	}
}

// Open creates a client that keeps its regions and id allocator in dir, so
// that a restarted process resumes where it left off. The directory is
// locked until Close.
func Open(dir string, firstID uint64) (*Client, error) {
	store, err := openBoltStore(dir)
	if err != nil {
		return nil, err
	}
	c := New(firstID)
	c.store = store
	if err := store.ForEach(func(r regionpkg.Region) error {
		c.indexLocked(r)
		return nil
	}); err != nil {
		_ = store.Close()
		return nil, err
	}
	next, err := store.LoadNextID()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if next > c.nextID {
		c.nextID = next
	}
	return c, nil
}

// Close releases the data directory of a client created with Open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// PutRegion stores region as PD's view of it.
func (c *Client) PutRegion(region regionpkg.Region) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putRegionLocked(region.Clone())
}

func (c *Client) putRegionLocked(region regionpkg.Region) error {
	if c.store != nil {
		if err := c.store.Put(region); err != nil {
			return err
		}
	}
	c.indexLocked(region)
	return nil
}

func (c *Client) indexLocked(region regionpkg.Region) {
	if prev, ok := c.regions[region.ID]; ok {
		c.byKey.Delete(&regionItem{region: prev})
	}
	c.regions[region.ID] = region
	c.byKey.ReplaceOrInsert(&regionItem{region: region})
}

// RemoveRegion forgets a region.
func (c *Client) RemoveRegion(id regionpkg.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.regions[id]
	if !ok {
		return nil
	}
	if c.store != nil {
		if err := c.store.Delete(id); err != nil {
			return err
		}
	}
	c.byKey.Delete(&regionItem{region: prev})
	delete(c.regions, id)
	return nil
}

// RegionByKey returns the region whose range contains key.
func (c *Client) RegionByKey(key []byte) (regionpkg.Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var found *regionItem
	c.byKey.DescendLessOrEqual(&regionItem{region: regionpkg.Region{Range: regionpkg.KeyRange{Start: key}}}, func(item *regionItem) bool {
		found = item
		return false
	})
	if found == nil || !found.region.ContainsKey(key) {
		return regionpkg.Region{}, false
	}
	return found.region.Clone(), true
}

// SetOperator scripts the response of the next heartbeat of region.
func (c *Client) SetOperator(id regionpkg.ID, resp pd.RegionHeartbeatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operators[id] = resp
}

// SetError makes method fail with err until cleared with a nil err.
func (c *Client) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, method)
		return
	}
	c.errs[method] = err
}

// Calls reports how often method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// StoreStats returns the last stats reported for storeID.
func (c *Client) StoreStats(storeID uint64) (pd.StoreStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stores[storeID]
	return st, ok
}

// Leader returns the last peer that heartbeated for region.
func (c *Client) Leader(id regionpkg.ID) (regionpkg.Peer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.leaders[id]
	return p, ok
}

func (c *Client) enter(method string) error {
	c.calls[method]++
	return c.errs[method]
}

func (c *Client) allocIDLocked() uint64 {
	id := c.nextID
	c.nextID++
	return id
}

func (c *Client) AskSplit(ctx context.Context, region regionpkg.Region) (*pd.AskSplitResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(MethodAskSplit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := &pd.AskSplitResponse{NewRegionID: regionpkg.ID(c.allocIDLocked())}
	for range region.Peers {
		resp.NewPeerIDs = append(resp.NewPeerIDs, c.allocIDLocked())
	}
	if c.store != nil {
		if err := c.store.SaveNextID(c.nextID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (c *Client) RegionHeartbeat(ctx context.Context, region regionpkg.Region, leader regionpkg.Peer, downPeers []pd.PeerStats, pendingPeers []regionpkg.Peer) (*pd.RegionHeartbeatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(MethodRegionHeartbeat); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prev, known := c.regions[region.ID]
	if !known || !regionpkg.IsEpochStale(region.Epoch, prev.Epoch) {
		if err := c.putRegionLocked(region.Clone()); err != nil {
			return nil, err
		}
	}
	c.leaders[region.ID] = leader

	resp, ok := c.operators[region.ID]
	if !ok {
		return &pd.RegionHeartbeatResponse{}, nil
	}
	delete(c.operators, region.ID)
	return &resp, nil
}

func (c *Client) StoreHeartbeat(ctx context.Context, stats pd.StoreStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(MethodStoreHeartbeat); err != nil {
		return err
	}
	c.stores[stats.StoreID] = stats
	return ctx.Err()
}

func (c *Client) ReportSplit(ctx context.Context, left, right regionpkg.Region) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(MethodReportSplit); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.putRegionLocked(left.Clone()); err != nil {
		return err
	}
	return c.putRegionLocked(right.Clone())
}

func (c *Client) GetRegionByID(ctx context.Context, id regionpkg.ID) (*regionpkg.Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(MethodGetRegion); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	region, ok := c.regions[id]
	if !ok {
		return nil, nil
	}
	clone := region.Clone()
	return &clone, nil
}
