package pdgrpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pd "nyxstore/internal/pd"
	regionpkg "nyxstore/internal/region"
)

// DefaultTimeout bounds a single PD call when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// Client implements pd.Client over gRPC.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ pd.Client = (*Client)(nil)

// Option customises a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout  time.Duration
	dialOpts []grpc.DialOption
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDialOptions appends raw gRPC dial options. When none of them carries
// transport credentials the connection is insecure.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *clientOptions) { o.dialOpts = append(o.dialOpts, opts...) }
}

// NewClient creates a PD client for target. The connection is established
// lazily on the first call.
func NewClient(target string, opts ...Option) (*Client, error) {
	o := clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	dialOpts = append(dialOpts, o.dialOpts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, timeout: o.timeout}, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.conn.Invoke(ctx, methodName(method), in, out)
}

func (c *Client) AskSplit(ctx context.Context, region regionpkg.Region) (*pd.AskSplitResponse, error) {
	resp := new(AskSplitResponse)
	if err := c.invoke(ctx, "AskSplit", &AskSplitRequest{Region: region}, resp); err != nil {
		return nil, err
	}
	return &pd.AskSplitResponse{
		NewRegionID: regionpkg.ID(resp.NewRegionID),
		NewPeerIDs:  resp.NewPeerIDs,
	}, nil
}

func (c *Client) RegionHeartbeat(ctx context.Context, region regionpkg.Region, leader regionpkg.Peer, downPeers []pd.PeerStats, pendingPeers []regionpkg.Peer) (*pd.RegionHeartbeatResponse, error) {
	req := &RegionHeartbeatRequest{
		Region:       region,
		Leader:       leader,
		DownPeers:    downPeers,
		PendingPeers: pendingPeers,
	}
	resp := new(RegionHeartbeatResponse)
	if err := c.invoke(ctx, "RegionHeartbeat", req, resp); err != nil {
		return nil, err
	}
	return &pd.RegionHeartbeatResponse{
		ChangePeer:     resp.ChangePeer,
		TransferLeader: resp.TransferLeader,
	}, nil
}

func (c *Client) StoreHeartbeat(ctx context.Context, stats pd.StoreStats) error {
	return c.invoke(ctx, "StoreHeartbeat", &StoreHeartbeatRequest{Stats: stats}, new(StoreHeartbeatResponse))
}

func (c *Client) ReportSplit(ctx context.Context, left, right regionpkg.Region) error {
	return c.invoke(ctx, "ReportSplit", &ReportSplitRequest{Left: left, Right: right}, new(ReportSplitResponse))
}

func (c *Client) GetRegionByID(ctx context.Context, id regionpkg.ID) (*regionpkg.Region, error) {
	resp := new(GetRegionResponse)
	if err := c.invoke(ctx, "GetRegion", &GetRegionRequest{RegionID: uint64(id)}, resp); err != nil {
		if pd.IsRegionNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Region, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
