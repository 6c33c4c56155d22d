package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/core/service"
	"github.com/rl1809/storeflow/internal/logger"
)

// JSONCodecName is the content subtype clients select with grpc.CallContentSubtype.
const JSONCodecName = "json"

// jsonCodec carries the plain Go message structs below as JSON.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type RecordMovementRequest struct {
	ProductID string `json:"productId"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
}

type RecordMovementResponse struct {
	Transaction domain.Transaction `json:"transaction"`
	Product     *domain.Product    `json:"product,omitempty"`
}

type LookupProductsRequest struct {
	Query string `json:"query"`
}

type LookupProductsResponse struct {
	Products []domain.Product `json:"products"`
}

type GetStatsRequest struct {
	Recent int `json:"recent"`
}

type GetStatsResponse struct {
	Stats service.Stats `json:"stats"`
}

// InventoryServiceServer is the server API of storeflow.v1.InventoryService.
type InventoryServiceServer interface {
	RecordMovement(context.Context, *RecordMovementRequest) (*RecordMovementResponse, error)
	LookupProducts(context.Context, *LookupProductsRequest) (*LookupProductsResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
}

const inventoryServiceName = "storeflow.v1.InventoryService"

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: inventoryServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordMovement", Handler: unaryHandler("RecordMovement", InventoryServiceServer.RecordMovement)},
		{MethodName: "LookupProducts", Handler: unaryHandler("LookupProducts", InventoryServiceServer.LookupProducts)},
		{MethodName: "GetStats", Handler: unaryHandler("GetStats", InventoryServiceServer.GetStats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storeflow/v1/inventory",
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

// unaryHandler adapts a typed method into a grpc.MethodDesc handler.
func unaryHandler[Req, Resp any](method string, call func(InventoryServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + inventoryServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InventoryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InventoryServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InventoryServiceClient calls storeflow.v1.InventoryService over a JSON-coded connection.
type InventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) *InventoryServiceClient {
	return &InventoryServiceClient{cc: cc}
}

func (c *InventoryServiceClient) RecordMovement(ctx context.Context, in *RecordMovementRequest, opts ...grpc.CallOption) (*RecordMovementResponse, error) {
	out := new(RecordMovementResponse)
	return out, c.invoke(ctx, "RecordMovement", in, out, opts)
}

func (c *InventoryServiceClient) LookupProducts(ctx context.Context, in *LookupProductsRequest, opts ...grpc.CallOption) (*LookupProductsResponse, error) {
	out := new(LookupProductsResponse)
	return out, c.invoke(ctx, "LookupProducts", in, out, opts)
}

func (c *InventoryServiceClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*GetStatsResponse, error) {
	out := new(GetStatsResponse)
	return out, c.invoke(ctx, "GetStats", in, out, opts)
}

func (c *InventoryServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+inventoryServiceName+"/"+method, in, out, opts...)
}

type GRPCHandler struct {
	inventory *service.Inventory
	metrics   *Metrics
}

func NewGRPCHandler(inventory *service.Inventory, metrics *Metrics) *GRPCHandler {
	return &GRPCHandler{inventory: inventory, metrics: metrics}
}

func (h *GRPCHandler) RecordMovement(ctx context.Context, req *RecordMovementRequest) (*RecordMovementResponse, error) {
	typ := domain.MovementType(strings.ToUpper(strings.TrimSpace(req.Type)))
	tx, err := h.inventory.Record(ctx, req.ProductID, typ, req.Quantity)
	if err != nil {
		return nil, grpcError(err)
	}
	h.metrics.RecordMovement(string(tx.Type), tx.Quantity)

	resp := &RecordMovementResponse{Transaction: tx}
	if p, ok := h.inventory.Product(req.ProductID); ok {
		resp.Product = &p
	}
	return resp, nil
}

func (h *GRPCHandler) LookupProducts(ctx context.Context, req *LookupProductsRequest) (*LookupProductsResponse, error) {
	return &LookupProductsResponse{Products: h.inventory.LookupForMovement(req.Query)}, nil
}

func (h *GRPCHandler) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	recent := req.Recent
	if recent <= 0 {
		recent = defaultRecentCount
	}
	return &GetStatsResponse{Stats: h.inventory.Stats(recent)}, nil
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidMovementType), errors.Is(err, service.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrProductNotFound):
		return status.Error(codes.NotFound, err.Error())
	case service.IsAuthError(err):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, service.ErrPersist):
		return status.Error(codes.Internal, "change applied but could not be persisted")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// AuthInterceptor requires a bearer session token in the "authorization" metadata.
func AuthInterceptor(auth *service.AuthService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var token string
		if vals := md.Get("authorization"); len(vals) > 0 {
			token, _ = strings.CutPrefix(vals[0], "Bearer ")
		}
		if strings.TrimSpace(token) == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		email, err := auth.Authenticate(ctx, strings.TrimSpace(token))
		if err != nil {
			return nil, grpcError(err)
		}
		return handler(context.WithValue(ctx, userKey, email), req)
	}
}

// MetricsInterceptor counts calls per method and status code and logs failures.
func (m *Metrics) MetricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	m.recordGRPC(info.FullMethod, code.String())
	if err != nil {
		logger.Logger.Warn().
			Err(err).
			Str("method", info.FullMethod).
			Str("grpc_status", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request failed")
	}
	return resp, err
}
