package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/collectible-trade/internal/auth"
	"github.com/rl1809/collectible-trade/internal/core/domain"
)

type errorClass struct {
	target error
	code   string
	status int
	grpc   codes.Code
}

// errorClasses is checked in order; ErrNotParticipant wraps
// ErrInvalidSelection so it must come first.
var errorClasses = []errorClass{
	{auth.ErrInvalidToken, "unauthenticated", http.StatusUnauthorized, codes.Unauthenticated},
	{auth.ErrExpiredToken, "unauthenticated", http.StatusUnauthorized, codes.Unauthenticated},
	{domain.ErrNotParticipant, "not_participant", http.StatusForbidden, codes.PermissionDenied},
	{domain.ErrNotRecipient, "not_recipient", http.StatusForbidden, codes.PermissionDenied},
	{domain.ErrInvalidSelection, "invalid_selection", http.StatusUnprocessableEntity, codes.InvalidArgument},
	{domain.ErrInvalidQuantity, "invalid_quantity", http.StatusUnprocessableEntity, codes.InvalidArgument},
	{domain.ErrEmptyTrade, "empty_trade", http.StatusUnprocessableEntity, codes.InvalidArgument},
	{domain.ErrSelfTrade, "self_trade", http.StatusUnprocessableEntity, codes.InvalidArgument},
	{domain.ErrSessionNotFound, "session_not_found", http.StatusNotFound, codes.NotFound},
	{domain.ErrSessionExists, "session_exists", http.StatusConflict, codes.AlreadyExists},
	{domain.ErrWrongStage, "wrong_stage", http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrStaleOffer, "stale_offer", http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable, codes.Unavailable},
	{domain.ErrShutdown, "shutting_down", http.StatusServiceUnavailable, codes.Unavailable},
}

var internalError = errorClass{code: "internal", status: http.StatusInternalServerError, grpc: codes.Internal}

func classify(err error) errorClass {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c
		}
	}
	return internalError
}
