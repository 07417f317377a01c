package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/collectible-trade/internal/auth"
	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/core/service"
)

// GRPCHandler serves trade.v1.TradeService. The caller is taken from the
// context, which auth.UnaryServerInterceptor fills from the bearer token.
type GRPCHandler struct {
	trades *service.TradeService
	logger *zap.Logger
}

func NewGRPCHandler(trades *service.TradeService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{trades: trades, logger: logger}
}

func (h *GRPCHandler) StartTrade(ctx context.Context, req *StartTradeRequest) (*TradeReply, error) {
	if req.RecipientID == "" {
		return nil, status.Error(codes.InvalidArgument, "missing recipient_id")
	}
	return h.reply(h.trades.Start(ctx, auth.UserID(ctx), req.RecipientID))
}

func (h *GRPCHandler) SelectItem(ctx context.Context, req *SelectItemRequest) (*TradeReply, error) {
	return h.reply(h.trades.SelectItem(ctx, req.SessionID, auth.UserID(ctx), req.ItemID))
}

func (h *GRPCHandler) ProposeQuantity(ctx context.Context, req *ProposeQuantityRequest) (*TradeReply, error) {
	if req.Quantity == nil {
		return nil, status.Error(codes.InvalidArgument, "missing quantity")
	}
	return h.reply(h.trades.ProposeQuantity(ctx, req.SessionID, auth.UserID(ctx), *req.Quantity))
}

func (h *GRPCHandler) Confirm(ctx context.Context, req *SessionRequest) (*TradeReply, error) {
	return h.reply(h.trades.Confirm(ctx, req.SessionID, auth.UserID(ctx)))
}

func (h *GRPCHandler) Decline(ctx context.Context, req *SessionRequest) (*TradeReply, error) {
	return h.reply(h.trades.Decline(ctx, req.SessionID, auth.UserID(ctx)))
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *SessionRequest) (*TradeReply, error) {
	return h.reply(h.trades.Cancel(ctx, req.SessionID, auth.UserID(ctx)))
}

func (h *GRPCHandler) GetTrade(ctx context.Context, req *SessionRequest) (*TradeReply, error) {
	return h.reply(h.trades.Get(ctx, req.SessionID, auth.UserID(ctx)))
}

func (h *GRPCHandler) reply(view domain.StageView, err error) (*TradeReply, error) {
	if err != nil {
		c := classify(err)
		if c.grpc == codes.Internal || c.grpc == codes.Unavailable {
			h.logger.Error("rpc failed", zap.String("code", c.code), zap.Error(err))
		}
		return nil, status.Error(c.grpc, err.Error())
	}
	return &TradeReply{View: view, Awaiting: view.Awaiting()}, nil
}
