package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/rl1809/seckill-cache/internal/metrics"
)

// The seckill service is small enough to be described by hand. Messages travel
// as JSON under the "json" content subtype.
const (
	SeckillServiceName = "seckill.v1.SeckillService"
	seckillMethod      = "/" + SeckillServiceName + "/Seckill"

	jsonCodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return jsonCodecName }

type SeckillRequest struct {
	UserID    int64 `json:"user_id"`
	VoucherID int64 `json:"voucher_id"`
}

// SeckillResponse reports business rejections in Success/Message. System
// failures are returned as gRPC status errors instead.
type SeckillResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID int64  `json:"order_id,string,omitempty"`
}

type SeckillServer interface {
	Seckill(ctx context.Context, req *SeckillRequest) (*SeckillResponse, error)
}

var SeckillServiceDesc = grpc.ServiceDesc{
	ServiceName: SeckillServiceName,
	HandlerType: (*SeckillServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Seckill", Handler: seckillHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func seckillHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SeckillRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SeckillServer).Seckill(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: seckillMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SeckillServer).Seckill(ctx, req.(*SeckillRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	orders  OrderService
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewGRPCHandler(orders OrderService, logger *zap.Logger, m *metrics.Metrics) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orders: orders, logger: logger, metrics: m}
}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&SeckillServiceDesc, h)
}

func (h *GRPCHandler) Seckill(ctx context.Context, req *SeckillRequest) (*SeckillResponse, error) {
	if req.UserID <= 0 || req.VoucherID <= 0 {
		return &SeckillResponse{Success: false, Message: "missing required fields"}, nil
	}

	orderID, err := h.orders.Seckill(ctx, req.UserID, req.VoucherID)
	if err != nil {
		info := classify(err)
		if info.rejection {
			return &SeckillResponse{Success: false, Message: info.message}, nil
		}
		h.logger.Error("Seckill RPC failed",
			zap.Int64("user_id", req.UserID),
			zap.Int64("voucher_id", req.VoucherID),
			zap.Error(err))
		return nil, status.Error(info.code, info.message)
	}

	return &SeckillResponse{
		Success: true,
		Message: "order placed successfully",
		OrderID: orderID,
	}, nil
}

// UnaryInterceptor records every RPC under its method name.
func (h *GRPCHandler) UnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	h.metrics.RecordRequest("grpc", info.FullMethod, status.Code(err).String(), time.Since(start).Seconds())
	return resp, err
}

// SeckillClient calls the seckill service over conn.
type SeckillClient struct {
	cc grpc.ClientConnInterface
}

func NewSeckillClient(cc grpc.ClientConnInterface) *SeckillClient {
	return &SeckillClient{cc: cc}
}

func (c *SeckillClient) Seckill(ctx context.Context, req *SeckillRequest, opts ...grpc.CallOption) (*SeckillResponse, error) {
	out := new(SeckillResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, seckillMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
