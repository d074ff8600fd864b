package pdgrpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "nyxstore.pd.v1.PD"

// Server is the PD endpoint contract served over gRPC. A server signals an
// unknown region on GetRegion either with a nil Region or a NotFound status.
type Server interface {
	AskSplit(ctx context.Context, in *AskSplitRequest) (*AskSplitResponse, error)
	RegionHeartbeat(ctx context.Context, in *RegionHeartbeatRequest) (*RegionHeartbeatResponse, error)
	StoreHeartbeat(ctx context.Context, in *StoreHeartbeatRequest) (*StoreHeartbeatResponse, error)
	ReportSplit(ctx context.Context, in *ReportSplitRequest) (*ReportSplitResponse, error)
	GetRegion(ctx context.Context, in *GetRegionRequest) (*GetRegionResponse, error)
}

// RegisterServer installs srv on s. The JSON codec is picked by content
// subtype, so s needs no codec option.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AskSplit", Handler: askSplitHandler},
		{MethodName: "RegionHeartbeat", Handler: regionHeartbeatHandler},
		{MethodName: "StoreHeartbeat", Handler: storeHeartbeatHandler},
		{MethodName: "ReportSplit", Handler: reportSplitHandler},
		{MethodName: "GetRegion", Handler: getRegionHandler},
	},
}

func methodName(method string) string {
	return "/" + serviceName + "/" + method
}

func askSplitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AskSplitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).AskSplit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName("AskSplit")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).AskSplit(ctx, req.(*AskSplitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func regionHeartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegionHeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).RegionHeartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName("RegionHeartbeat")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).RegionHeartbeat(ctx, req.(*RegionHeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func storeHeartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StoreHeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).StoreHeartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName("StoreHeartbeat")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).StoreHeartbeat(ctx, req.(*StoreHeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reportSplitHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReportSplitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ReportSplit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName("ReportSplit")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).ReportSplit(ctx, req.(*ReportSplitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getRegionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRegionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).GetRegion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodName("GetRegion")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(Server).GetRegion(ctx, req.(*GetRegionRequest))
	}
	return interceptor(ctx, in, info, handler)
}
