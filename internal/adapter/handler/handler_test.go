package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/adapter/storage"
	"github.com/rl1809/collectible-trade/internal/auth"
	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/core/service"
)

type testServer struct {
	store  *storage.MemoryAdapter
	trades *service.TradeService
	jwt    *auth.JWTService
	http   http.Handler
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, store.SetHolding(ctx, "ash", "charizard", 2))
	require.NoError(t, store.SetHolding(ctx, "misty", "pikachu", 3))

	logger := zap.NewNop()
	trades := service.NewTradeService(store, service.NewExecutor(store, logger), nil, service.DefaultStageTimeouts(), logger)
	t.Cleanup(trades.Close)

	jwtService := auth.NewJWTService("handler-test-secret", time.Hour)
	srv := &testServer{
		store:  store,
		trades: trades,
		jwt:    jwtService,
		http:   NewHTTPHandler(trades, store, store, logger).Routes(jwtService),
		tokens: make(map[string]string),
	}
	return srv
}

func (s *testServer) token(t *testing.T, user string) string {
	t.Helper()
	if tok, ok := s.tokens[user]; ok {
		return tok
	}
	tok, _, err := s.jwt.GenerateToken(user)
	require.NoError(t, err)
	s.tokens[user] = tok
	return tok
}

func (s *testServer) call(t *testing.T, user, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	rec := httptest.NewRecorder()
	s.http.ServeHTTP(rec, req)
	return rec
}

func decodeTrade(t *testing.T, rec *httptest.ResponseRecorder) TradeHTTPResponse {
	t.Helper()
	var resp TradeHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorHTTPResponse {
	t.Helper()
	var resp ErrorHTTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHTTP_FullTrade(t *testing.T) {
	s := newTestServer(t)

	rec := s.call(t, "ash", http.MethodPost, "/api/trades", map[string]string{"recipient_id": "misty"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeTrade(t, rec)
	assert.Equal(t, domain.StageSelectingInitiatorItem, started.Stage)
	assert.ElementsMatch(t, []domain.Party{domain.PartyInitiator, domain.PartyRecipient}, started.Awaiting)
	base := "/api/trades/" + started.SessionID

	rec = s.call(t, "misty", http.MethodPost, base+"/select", map[string]string{"item_id": "pikachu"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StageSelectingInitiatorItem, decodeTrade(t, rec).Stage)

	rec = s.call(t, "ash", http.MethodPost, base+"/select", map[string]string{"item_id": "charizard"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StageAwaitingQuantities, decodeTrade(t, rec).Stage)

	s.call(t, "ash", http.MethodPost, base+"/quantity", map[string]int{"quantity": 1})
	rec = s.call(t, "misty", http.MethodPost, base+"/quantity", map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirming := decodeTrade(t, rec)
	assert.Equal(t, domain.StageAwaitingConfirmation, confirming.Stage)
	assert.Equal(t, []domain.Party{domain.PartyRecipient}, confirming.Awaiting)

	rec = s.call(t, "ash", http.MethodPost, base+"/confirm", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_recipient", decodeError(t, rec).Code)

	rec = s.call(t, "misty", http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeTrade(t, rec)
	assert.Equal(t, domain.StageCommitted, done.Stage)
	require.NotEmpty(t, done.TradeID)

	rec = s.call(t, "ash", http.MethodGet, "/api/holdings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holdings []domain.Holding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	assert.Equal(t, []domain.Holding{
		{OwnerID: "ash", ItemID: "charizard", Quantity: 1},
		{OwnerID: "ash", ItemID: "pikachu", Quantity: 2},
	}, holdings)

	rec = s.call(t, "misty", http.MethodGet, "/api/records/"+done.TradeID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record domain.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "charizard", record.InitiatorOffer.ItemID())

	rec = s.call(t, "brock", http.MethodGet, "/api/records/"+done.TradeID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.call(t, "ash", http.MethodGet, "/api/records?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)

	rec = s.call(t, "ash", http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "a finished session is closed")
}

func TestHTTP_ErrorMapping(t *testing.T) {
	s := newTestServer(t)

	rec := s.call(t, "", http.MethodPost, "/api/trades", map[string]string{"recipient_id": "misty"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.call(t, "ash", http.MethodPost, "/api/trades", map[string]string{"recipient_id": "ash"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "self_trade", decodeError(t, rec).Code)

	rec = s.call(t, "ash", http.MethodPost, "/api/trades", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, "ash", http.MethodPost, "/api/trades", map[string]string{"recipient_id": "misty"})
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/trades/" + decodeTrade(t, rec).SessionID

	rec = s.call(t, "misty", http.MethodPost, "/api/trades", map[string]string{"recipient_id": "ash"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_exists", decodeError(t, rec).Code)

	rec = s.call(t, "brock", http.MethodPost, base+"/select", map[string]string{"item_id": "onix"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_participant", decodeError(t, rec).Code)

	rec = s.call(t, "ash", http.MethodPost, base+"/quantity", map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "wrong_stage", decodeError(t, rec).Code)

	rec = s.call(t, "ash", http.MethodPost, base+"/quantity", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, "ash", http.MethodPost, base+"/select", map[string]string{"item_id": "mewtwo"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failed := decodeError(t, rec)
	assert.Equal(t, "invalid_selection", failed.Code)
	require.NotNil(t, failed.Trade)
	assert.Equal(t, domain.StageAborted, failed.Trade.Stage)
	assert.Equal(t, domain.ReasonInvalidSelection, failed.Trade.Reason)

	rec = s.call(t, "ash", http.MethodPost, base+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.call(t, "ash", http.MethodGet, "/api/records?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_CancelAndHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.call(t, "ash", http.MethodPost, "/api/trades", map[string]string{"recipient_id": "misty"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeTrade(t, rec).SessionID

	rec = s.call(t, "", http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","active_sessions":1}`, rec.Body.String())

	rec = s.call(t, "misty", http.MethodPost, "/api/trades/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decodeTrade(t, rec)
	assert.Equal(t, domain.StageAborted, cancelled.Stage)
	assert.Equal(t, domain.ReasonCancelled, cancelled.Reason)
	assert.Empty(t, cancelled.Awaiting)

	assert.Zero(t, s.trades.ActiveSessions())
}
