// internal/handler/service.go
package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/SyedDaiam9101/headpose-service/internal/task"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "headpose.v1.HeadPoseEstimator"

// CodecName is the content-subtype clients select with
// grpc.CallContentSubtype to talk to the service
const CodecName = "json"

// EstimateRequest carries one encoded image. With no regions, faces are
// detected first.
type EstimateRequest struct {
	Stream  string     `json:"stream,omitempty"`
	Image   []byte     `json:"image"`
	Regions []task.Box `json:"regions,omitempty"`
}

type Pose struct {
	Location task.Box `json:"location"`
	Yaw      float32  `json:"yaw"`
	Pitch    float32  `json:"pitch"`
	Roll     float32  `json:"roll"`
}

type Face struct {
	Location   task.Box `json:"location"`
	Confidence float32  `json:"confidence"`
}

// Skip is a region that produced no pose
type Skip struct {
	Index  int      `json:"index"`
	Region task.Box `json:"region"`
	Reason string   `json:"reason"`
}

type EstimateResponse struct {
	Faces     []Face  `json:"faces,omitempty"`
	Poses     []Pose  `json:"poses"`
	Skipped   []Skip  `json:"skipped,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

type BatchEstimateRequest struct {
	Requests []*EstimateRequest `json:"requests"`
}

type BatchEstimateResponse struct {
	Responses []*EstimateResponse `json:"responses"`
}

// HeadPoseEstimatorServer is the server API of the estimator service
type HeadPoseEstimatorServer interface {
	Estimate(context.Context, *EstimateRequest) (*EstimateResponse, error)
	BatchEstimate(context.Context, *BatchEstimateRequest) (*BatchEstimateResponse, error)
}

// RegisterHeadPoseEstimatorServer registers srv on s
func RegisterHeadPoseEstimatorServer(s grpc.ServiceRegistrar, srv HeadPoseEstimatorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func estimateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(EstimateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeadPoseEstimatorServer).Estimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Estimate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeadPoseEstimatorServer).Estimate(ctx, req.(*EstimateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func batchEstimateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BatchEstimateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HeadPoseEstimatorServer).BatchEstimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/BatchEstimate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HeadPoseEstimatorServer).BatchEstimate(ctx, req.(*BatchEstimateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the estimator service for grpc.Server. Messages
// use the JSON codec, so there is no proto file behind it.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HeadPoseEstimatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Estimate", Handler: estimateHandler},
		{MethodName: "BatchEstimate", Handler: batchEstimateHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// Client calls the estimator over a connection using the JSON codec
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Estimate(ctx context.Context, in *EstimateRequest, opts ...grpc.CallOption) (*EstimateResponse, error) {
	out := new(EstimateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Estimate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BatchEstimate(ctx context.Context, in *BatchEstimateRequest, opts ...grpc.CallOption) (*BatchEstimateResponse, error) {
	out := new(BatchEstimateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/BatchEstimate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
