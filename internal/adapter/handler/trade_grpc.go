package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

const tradeServiceName = "trade.v1.TradeService"

type StartTradeRequest struct {
	RecipientID string `json:"recipient_id"`
}

type SelectItemRequest struct {
	SessionID string `json:"session_id"`
	ItemID    string `json:"item_id"`
}

// ProposeQuantityRequest carries Quantity as a pointer so an omitted field
// is rejected instead of read as zero.
type ProposeQuantityRequest struct {
	SessionID string `json:"session_id"`
	Quantity  *int   `json:"quantity"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type TradeReply struct {
	View     domain.StageView `json:"view"`
	Awaiting []domain.Party   `json:"awaiting"`
}

// TradeServiceServer is the server side of trade.v1.TradeService.
type TradeServiceServer interface {
	StartTrade(context.Context, *StartTradeRequest) (*TradeReply, error)
	SelectItem(context.Context, *SelectItemRequest) (*TradeReply, error)
	ProposeQuantity(context.Context, *ProposeQuantityRequest) (*TradeReply, error)
	Confirm(context.Context, *SessionRequest) (*TradeReply, error)
	Decline(context.Context, *SessionRequest) (*TradeReply, error)
	Cancel(context.Context, *SessionRequest) (*TradeReply, error)
	GetTrade(context.Context, *SessionRequest) (*TradeReply, error)
}

func RegisterTradeServiceServer(s grpc.ServiceRegistrar, srv TradeServiceServer) {
	s.RegisterService(&tradeServiceDesc, srv)
}

var tradeServiceDesc = grpc.ServiceDesc{
	ServiceName: tradeServiceName,
	HandlerType: (*TradeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartTrade", Handler: unaryHandler("StartTrade", TradeServiceServer.StartTrade)},
		{MethodName: "SelectItem", Handler: unaryHandler("SelectItem", TradeServiceServer.SelectItem)},
		{MethodName: "ProposeQuantity", Handler: unaryHandler("ProposeQuantity", TradeServiceServer.ProposeQuantity)},
		{MethodName: "Confirm", Handler: unaryHandler("Confirm", TradeServiceServer.Confirm)},
		{MethodName: "Decline", Handler: unaryHandler("Decline", TradeServiceServer.Decline)},
		{MethodName: "Cancel", Handler: unaryHandler("Cancel", TradeServiceServer.Cancel)},
		{MethodName: "GetTrade", Handler: unaryHandler("GetTrade", TradeServiceServer.GetTrade)},
	},
	Streams: []grpc.StreamDesc{},
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler[Req any](method string, call func(TradeServiceServer, context.Context, *Req) (*TradeReply, error)) methodHandler {
	fullMethod := "/" + tradeServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TradeServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(TradeServiceServer), ctx, req.(*Req))
		})
	}
}

// TradeServiceClient calls trade.v1.TradeService using the JSON codec.
type TradeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTradeServiceClient(cc grpc.ClientConnInterface) *TradeServiceClient {
	return &TradeServiceClient{cc: cc}
}

func (c *TradeServiceClient) StartTrade(ctx context.Context, in *StartTradeRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "StartTrade", in, opts)
}

func (c *TradeServiceClient) SelectItem(ctx context.Context, in *SelectItemRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "SelectItem", in, opts)
}

func (c *TradeServiceClient) ProposeQuantity(ctx context.Context, in *ProposeQuantityRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "ProposeQuantity", in, opts)
}

func (c *TradeServiceClient) Confirm(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "Confirm", in, opts)
}

func (c *TradeServiceClient) Decline(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "Decline", in, opts)
}

func (c *TradeServiceClient) Cancel(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "Cancel", in, opts)
}

func (c *TradeServiceClient) GetTrade(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*TradeReply, error) {
	return c.invoke(ctx, "GetTrade", in, opts)
}

func (c *TradeServiceClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*TradeReply, error) {
	out := new(TradeReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+tradeServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
