package pdgrpc_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/raft/v3/raftpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	pd "nyxstore/internal/pd"
	pdgrpc "nyxstore/internal/pd/grpc"
	regionpkg "nyxstore/internal/region"
)

type fakePD struct {
	mu          sync.Mutex
	regions     map[uint64]regionpkg.Region
	heartbeat   *pdgrpc.RegionHeartbeatResponse
	stores      []pd.StoreStats
	splits      [][2]regionpkg.Region
	notFoundErr bool
	delay       time.Duration
}

func (f *fakePD) AskSplit(ctx context.Context, in *pdgrpc.AskSplitRequest) (*pdgrpc.AskSplitResponse, error) {
	ids := make([]uint64, 0, len(in.Region.Peers))
	for i := range in.Region.Peers {
		ids = append(ids, 100+uint64(i))
	}
	return &pdgrpc.AskSplitResponse{NewRegionID: uint64(in.Region.ID) + 1, NewPeerIDs: ids}, nil
}

func (f *fakePD) RegionHeartbeat(ctx context.Context, in *pdgrpc.RegionHeartbeatRequest) (*pdgrpc.RegionHeartbeatResponse, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeat == nil {
		return &pdgrpc.RegionHeartbeatResponse{}, nil
	}
	return f.heartbeat, nil
}

func (f *fakePD) StoreHeartbeat(ctx context.Context, in *pdgrpc.StoreHeartbeatRequest) (*pdgrpc.StoreHeartbeatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores = append(f.stores, in.Stats)
	return &pdgrpc.StoreHeartbeatResponse{}, nil
}

func (f *fakePD) ReportSplit(ctx context.Context, in *pdgrpc.ReportSplitRequest) (*pdgrpc.ReportSplitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splits = append(f.splits, [2]regionpkg.Region{in.Left, in.Right})
	return &pdgrpc.ReportSplitResponse{}, nil
}

func (f *fakePD) GetRegion(ctx context.Context, in *pdgrpc.GetRegionRequest) (*pdgrpc.GetRegionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.regions[in.RegionID]
	if !ok {
		if f.notFoundErr {
			return nil, status.Error(codes.NotFound, "region not found")
		}
		return &pdgrpc.GetRegionResponse{}, nil
	}
	return &pdgrpc.GetRegionResponse{Region: &r}, nil
}

func startFakePD(t *testing.T, fake pdgrpc.Server, opts ...pdgrpc.Option) *pdgrpc.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pdgrpc.RegisterServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	opts = append(opts, pdgrpc.WithDialOptions(grpc.WithContextDialer(dialer)))
	client, err := pdgrpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientAskSplit(t *testing.T) {
	client := startFakePD(t, &fakePD{})
	region := regionpkg.Region{
		ID:    1,
		Peers: []regionpkg.Peer{{ID: 1, StoreID: 1}, {ID: 2, StoreID: 2}, {ID: 3, StoreID: 3}},
	}
	resp, err := client.AskSplit(context.Background(), region)
	require.NoError(t, err)
	assert.Equal(t, regionpkg.ID(2), resp.NewRegionID)
	assert.Equal(t, []uint64{100, 101, 102}, resp.NewPeerIDs)
}

func TestClientRegionHeartbeatDirectives(t *testing.T) {
	fake := &fakePD{heartbeat: &pdgrpc.RegionHeartbeatResponse{
		ChangePeer: &pd.ChangePeer{
			ChangeType: raftpb.ConfChangeRemoveNode,
			Peer:       regionpkg.Peer{ID: 3, StoreID: 3},
		},
	}}
	client := startFakePD(t, fake)

	resp, err := client.RegionHeartbeat(context.Background(), regionpkg.Region{ID: 1}, regionpkg.Peer{ID: 1, StoreID: 1}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, resp.ChangePeer)
	assert.Equal(t, raftpb.ConfChangeRemoveNode, resp.ChangePeer.ChangeType)
	assert.Equal(t, uint64(3), resp.ChangePeer.Peer.ID)
	assert.Nil(t, resp.TransferLeader)
}

func TestClientStoreHeartbeatAndReportSplit(t *testing.T) {
	fake := &fakePD{}
	client := startFakePD(t, fake)

	require.NoError(t, client.StoreHeartbeat(context.Background(), pd.StoreStats{StoreID: 7, RegionCount: 3}))
	left := regionpkg.Region{ID: 1, Range: regionpkg.KeyRange{End: []byte("m")}}
	right := regionpkg.Region{ID: 2, Range: regionpkg.KeyRange{Start: []byte("m")}}
	require.NoError(t, client.ReportSplit(context.Background(), left, right))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.stores, 1)
	assert.Equal(t, uint64(7), fake.stores[0].StoreID)
	require.Len(t, fake.splits, 1)
	assert.Equal(t, []byte("m"), fake.splits[0][0].Range.End)
	assert.Equal(t, regionpkg.ID(2), fake.splits[0][1].ID)
}

func TestClientGetRegion(t *testing.T) {
	known := regionpkg.Region{
		ID:    5,
		Epoch: regionpkg.Epoch{Version: 2, ConfVersion: 1},
		Peers: []regionpkg.Peer{{ID: 1, StoreID: 1}},
	}
	fake := &fakePD{regions: map[uint64]regionpkg.Region{5: known}}
	client := startFakePD(t, fake)

	got, err := client.GetRegionByID(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, known.Epoch, got.Epoch)
	assert.True(t, got.HasPeer(regionpkg.Peer{ID: 1, StoreID: 1}))

	missing, err := client.GetRegionByID(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, missing)

	fake.mu.Lock()
	fake.notFoundErr = true
	fake.mu.Unlock()
	missing, err = client.GetRegionByID(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClientTimeout(t *testing.T) {
	client := startFakePD(t, &fakePD{delay: time.Second}, pdgrpc.WithTimeout(20*time.Millisecond))

	_, err := client.RegionHeartbeat(context.Background(), regionpkg.Region{ID: 1}, regionpkg.Peer{ID: 1}, nil, nil)
	require.Error(t, err)
	assert.True(t, pd.IsTransportError(err))
}
