package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/collectible-trade/internal/adapter/storage"
	"github.com/rl1809/collectible-trade/internal/core/domain"
	"github.com/rl1809/collectible-trade/internal/core/service"
)

const (
	hubID     = "stress-hub"
	hubItem   = "mew"
	traderTag = "pidgey"
)

var (
	redisAddr string
	traders   int
	hubStock  int
)

// Every trader offers one pidgey for one of the hub's mews. All sessions are
// negotiated while the hub still holds every mew, then confirmed at once, so
// the commit alone decides that exactly hubStock of them win.
var rootCmd = &cobra.Command{
	Use:   "stress_test",
	Short: "Race concurrent trades against one scarce holding",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address; in-memory storage when empty")
	rootCmd.Flags().IntVar(&traders, "traders", 50, "Concurrent trade sessions")
	rootCmd.Flags().IntVar(&hubStock, "stock", 20, "Mews held by the hub")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	store, cleanup, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.SetHolding(ctx, hubID, hubItem, hubStock); err != nil {
		return fmt.Errorf("failed to set stock: %w", err)
	}
	for i := 0; i < traders; i++ {
		if err := store.SetHolding(ctx, traderID(i), hubItem, 0); err != nil {
			return err
		}
		if err := store.SetHolding(ctx, traderID(i), traderTag, 1); err != nil {
			return err
		}
	}
	if err := store.SetHolding(ctx, hubID, traderTag, 0); err != nil {
		return err
	}

	logger := zap.NewNop()
	trades := service.NewTradeService(store, service.NewExecutor(store, logger), nil, service.DefaultStageTimeouts(), logger)
	defer trades.Close()

	var committed, stale, failed atomic.Int32
	var negotiated, wg sync.WaitGroup
	release := make(chan struct{})
	start := time.Now()

	// every session reaches awaiting_confirmation before any confirms
	for i := 0; i < traders; i++ {
		negotiated.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			id, err := negotiate(ctx, trades, traderID(i))
			negotiated.Done()
			if err != nil {
				failed.Add(1)
				fmt.Printf("%s: negotiate: %v\n", traderID(i), err)
				return
			}
			<-release

			_, err = trades.Confirm(ctx, id, hubID)
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, domain.ErrStaleOffer):
				stale.Add(1)
			default:
				failed.Add(1)
				fmt.Printf("%s: confirm: %v\n", traderID(i), err)
			}
		}(i)
	}

	negotiated.Wait()
	close(release)
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Hub Stock:        %d\n", hubStock)
	fmt.Printf("Traders:          %d\n", traders)
	fmt.Printf("Committed:        %d\n", committed.Load())
	fmt.Printf("Rejected (stale): %d\n", stale.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	want := min(hubStock, traders)
	ok := true
	if int(committed.Load()) != want || int(stale.Load()) != traders-want || failed.Load() != 0 {
		fmt.Printf("FAIL: expected %d commits, %d stale and no errors\n", want, traders-want)
		ok = false
	} else {
		fmt.Printf("PASS: exactly %d trades committed\n", want)
	}

	mews, pidgeys, err := totals(ctx, store)
	if err != nil {
		return err
	}
	if mews == hubStock && pidgeys == traders {
		fmt.Printf("PASS: totals conserved (%d %s, %d %s)\n", mews, hubItem, pidgeys, traderTag)
	} else {
		fmt.Printf("FAIL: totals drifted (%d %s, %d %s)\n", mews, hubItem, pidgeys, traderTag)
		ok = false
	}

	if !ok {
		return errors.New("stress test failed")
	}
	return nil
}

// negotiate drives one session to awaiting_confirmation and returns its id.
func negotiate(ctx context.Context, trades *service.TradeService, trader string) (string, error) {
	view, err := trades.Start(ctx, trader, hubID)
	if err != nil {
		return "", err
	}
	id := view.SessionID

	steps := []func() (domain.StageView, error){
		func() (domain.StageView, error) { return trades.SelectItem(ctx, id, trader, traderTag) },
		func() (domain.StageView, error) { return trades.SelectItem(ctx, id, hubID, hubItem) },
		func() (domain.StageView, error) { return trades.ProposeQuantity(ctx, id, trader, 1) },
		func() (domain.StageView, error) { return trades.ProposeQuantity(ctx, id, hubID, 1) },
	}
	for _, step := range steps {
		if view, err = step(); err != nil {
			return "", err
		}
	}
	if view.Stage != domain.StageAwaitingConfirmation {
		return "", fmt.Errorf("session %s stuck in %s", id, view.Stage)
	}
	return id, nil
}

func totals(ctx context.Context, store storage.Store) (mews, pidgeys int, err error) {
	owners := []string{hubID}
	for i := 0; i < traders; i++ {
		owners = append(owners, traderID(i))
	}
	for _, owner := range owners {
		m, err := store.GetHolding(ctx, owner, hubItem)
		if err != nil {
			return 0, 0, err
		}
		p, err := store.GetHolding(ctx, owner, traderTag)
		if err != nil {
			return 0, 0, err
		}
		mews += m
		pidgeys += p
	}
	return mews, pidgeys, nil
}

func openStore(ctx context.Context) (storage.Store, func(), error) {
	if redisAddr == "" {
		return storage.NewMemoryAdapter(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil
}

func traderID(i int) string {
	return fmt.Sprintf("stress-trader-%d", i)
}
