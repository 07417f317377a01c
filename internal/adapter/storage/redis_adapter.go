package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/collectible-trade/internal/core/domain"
)

const (
	holdingsKeyPrefix    = "holdings:"
	tradeKeyPrefix       = "trade:"
	ownerTradesKeyPrefix = "trades:"
)

// adjustHoldingScript applies a signed delta unless it would go negative.
// Returns the new quantity, or -1 when the holding is insufficient.
var adjustHoldingScript = redis.NewScript(`
local key = KEYS[1]
local item = ARGV[1]
local delta = tonumber(ARGV[2])

local current = tonumber(redis.call('HGET', key, item) or '0')
if current + delta < 0 then
	return -1
end

local updated = redis.call('HINCRBY', key, item, delta)
if updated == 0 then
	redis.call('HDEL', key, item)
end
return updated
`)

// commitTradeScript re-validates both legs, moves them and appends the record
// in one script run. All checks happen before the first write.
// Returns 0 ok, 1 initiator short, 2 recipient short, -1 duplicate trade.
var commitTradeScript = redis.NewScript(`
local initiatorKey = KEYS[1]
local recipientKey = KEYS[2]
local tradeKey = KEYS[3]

local initiatorItem = ARGV[1]
local initiatorQty = tonumber(ARGV[2])
local recipientItem = ARGV[3]
local recipientQty = tonumber(ARGV[4])

if redis.call('EXISTS', tradeKey) == 1 then
	return -1
end

if initiatorQty > 0 then
	local held = tonumber(redis.call('HGET', initiatorKey, initiatorItem) or '0')
	if held < initiatorQty then
		return 1
	end
end
if recipientQty > 0 then
	local held = tonumber(redis.call('HGET', recipientKey, recipientItem) or '0')
	if held < recipientQty then
		return 2
	end
end

if initiatorQty > 0 then
	if redis.call('HINCRBY', initiatorKey, initiatorItem, -initiatorQty) == 0 then
		redis.call('HDEL', initiatorKey, initiatorItem)
	end
end
if recipientQty > 0 then
	if redis.call('HINCRBY', recipientKey, recipientItem, -recipientQty) == 0 then
		redis.call('HDEL', recipientKey, recipientItem)
	end
end
if initiatorQty > 0 then
	redis.call('HINCRBY', recipientKey, initiatorItem, initiatorQty)
end
if recipientQty > 0 then
	redis.call('HINCRBY', initiatorKey, recipientItem, recipientQty)
end

redis.call('SET', tradeKey, ARGV[5])
redis.call('LPUSH', KEYS[4], ARGV[6])
redis.call('LPUSH', KEYS[5], ARGV[6])
return 0
`)

// RedisAdapter stores holdings as one hash per owner (field = item id) and
// trade records as JSON strings indexed by per-owner lists. Keys of a single
// trade span several owners, so it targets a standalone Redis, not a cluster.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetHolding(ctx context.Context, ownerID, itemID string) (int, error) {
	qty, err := r.client.HGet(ctx, holdingsKeyPrefix+ownerID, itemID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func (r *RedisAdapter) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	fields, err := r.client.HGetAll(ctx, holdingsKeyPrefix+ownerID).Result()
	if err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(fields))
	for itemID, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse holding %s/%s: %w", ownerID, itemID, err)
		}
		if qty > 0 {
			holdings = append(holdings, domain.Holding{OwnerID: ownerID, ItemID: itemID, Quantity: qty})
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].ItemID < holdings[j].ItemID })
	return holdings, nil
}

func (r *RedisAdapter) AdjustHolding(ctx context.Context, ownerID, itemID string, delta int) (int, error) {
	key := holdingsKeyPrefix + ownerID

	result, err := adjustHoldingScript.Run(ctx, r.client, []string{key}, itemID, delta).Int()
	if err != nil {
		return 0, err
	}
	if result < 0 {
		return 0, &domain.InsufficientHoldingError{OwnerID: ownerID, ItemID: itemID, Wanted: -delta}
	}
	return result, nil
}

// SetHolding overwrites a holding; used for seeding and tests.
func (r *RedisAdapter) SetHolding(ctx context.Context, ownerID, itemID string, quantity int) error {
	key := holdingsKeyPrefix + ownerID
	if quantity == 0 {
		return r.client.HDel(ctx, key, itemID).Err()
	}
	return r.client.HSet(ctx, key, itemID, quantity).Err()
}

func (r *RedisAdapter) CommitTrade(ctx context.Context, record domain.TradeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal trade record: %w", err)
	}

	keys := []string{
		holdingsKeyPrefix + record.InitiatorID,
		holdingsKeyPrefix + record.RecipientID,
		tradeKeyPrefix + record.ID,
		ownerTradesKeyPrefix + record.InitiatorID,
		ownerTradesKeyPrefix + record.RecipientID,
	}
	give, take := record.InitiatorOffer, record.RecipientOffer

	result, err := commitTradeScript.Run(ctx, r.client, keys,
		give.ItemID(), give.Quantity(),
		take.ItemID(), take.Quantity(),
		data, record.ID,
	).Int()
	if err != nil {
		return err
	}

	switch result {
	case 0:
		return nil
	case 1:
		return &domain.InsufficientHoldingError{OwnerID: record.InitiatorID, ItemID: give.ItemID(), Wanted: give.Quantity()}
	case 2:
		return &domain.InsufficientHoldingError{OwnerID: record.RecipientID, ItemID: take.ItemID(), Wanted: take.Quantity()}
	case -1:
		return domain.ErrDuplicateTrade
	}
	return fmt.Errorf("commit trade %s: unexpected script result %d", record.ID, result)
}

func (r *RedisAdapter) GetTrade(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	data, err := r.client.Get(ctx, tradeKeyPrefix+tradeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec domain.TradeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode trade %s: %w", tradeID, err)
	}
	return &rec, nil
}

func (r *RedisAdapter) ListTrades(ctx context.Context, ownerID string, limit int) ([]domain.TradeRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.LRange(ctx, ownerTradesKeyPrefix+ownerID, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = tradeKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]domain.TradeRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.TradeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode trade %s: %w", ids[i], err)
		}
		records = append(records, rec)
	}
	return records, nil
}
