package pdgrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pd "nyxstore/internal/pd"
	regionpkg "nyxstore/internal/region"
)

// clientService serves a pd.Client as a PD endpoint.
type clientService struct {
	client pd.Client
}

// NewService exposes client over the PD gRPC contract. Paired with the
// in-memory client it stands up a local PD for development.
func NewService(client pd.Client) Server {
	return &clientService{client: client}
}

func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pd.ErrRegionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, pd.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.FromContextError(err).Err()
	}
}

func (s *clientService) AskSplit(ctx context.Context, in *AskSplitRequest) (*AskSplitResponse, error) {
	resp, err := s.client.AskSplit(ctx, in.Region)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &AskSplitResponse{}
	if resp != nil {
		out.NewRegionID = uint64(resp.NewRegionID)
		out.NewPeerIDs = resp.NewPeerIDs
	}
	return out, nil
}

func (s *clientService) RegionHeartbeat(ctx context.Context, in *RegionHeartbeatRequest) (*RegionHeartbeatResponse, error) {
	resp, err := s.client.RegionHeartbeat(ctx, in.Region, in.Leader, in.DownPeers, in.PendingPeers)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &RegionHeartbeatResponse{}
	if resp != nil {
		out.ChangePeer = resp.ChangePeer
		out.TransferLeader = resp.TransferLeader
	}
	return out, nil
}

func (s *clientService) StoreHeartbeat(ctx context.Context, in *StoreHeartbeatRequest) (*StoreHeartbeatResponse, error) {
	if err := s.client.StoreHeartbeat(ctx, in.Stats); err != nil {
		return nil, toStatus(err)
	}
	return &StoreHeartbeatResponse{}, nil
}

func (s *clientService) ReportSplit(ctx context.Context, in *ReportSplitRequest) (*ReportSplitResponse, error) {
	if err := s.client.ReportSplit(ctx, in.Left, in.Right); err != nil {
		return nil, toStatus(err)
	}
	return &ReportSplitResponse{}, nil
}

func (s *clientService) GetRegion(ctx context.Context, in *GetRegionRequest) (*GetRegionResponse, error) {
	region, err := s.client.GetRegionByID(ctx, regionpkg.ID(in.RegionID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetRegionResponse{Region: region}, nil
}
