package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storeflow/internal/adapter/storage"
	"github.com/rl1809/storeflow/internal/config"
	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/core/service"
	"github.com/rl1809/storeflow/internal/logger"
	"github.com/rl1809/storeflow/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init("storeflow-stress", true)
	logger.SetLevel("warn")

	slots, closeSlots, err := openSlots(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("backend", cfg.SlotBackend).Msg("failed to open slot storage")
	}
	defer closeSlots()

	// Clear previous test data
	for _, key := range []string{service.KeyProducts, service.KeyTransactions} {
		if err := slots.Delete(ctx, key); err != nil {
			logger.Logger.Fatal().Err(err).Str("slot", key).Msg("failed to reset slot")
		}
	}

	inventory := service.NewInventory(service.NewStateStore(slots), service.InventoryConfig{QueueSize: queueSize})
	product, err := inventory.AddProduct(ctx, domain.ProductForm{
		Name:     "Stress Item",
		Quantity: fmt.Sprint(initialStock),
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create product")
	}

	// Drain the movement queue in background
	var drained atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range inventory.Movements() {
			drained.Add(1)
		}
	}()

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent movements
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := inventory.Record(ctx, product.ID, domain.MovementOut, 1); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	inventory.Close()
	<-done

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Slot Backend:     %s\n", cfg.SlotBackend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Recorded:         %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Events Drained:   %d\n", drained.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == totalRequests && fail == 0 {
		fmt.Printf("PASS: All %d movements recorded\n", totalRequests)
	} else {
		fmt.Printf("FAIL: Expected %d recorded/0 failed, got %d/%d\n", totalRequests, success, fail)
	}

	// Verify persisted state from a fresh load
	reloaded := service.NewInventory(service.NewStateStore(slots), service.InventoryConfig{})
	if err := reloaded.Load(ctx); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to reload state")
	}

	stored, _ := reloaded.Product(product.ID)
	fmt.Printf("Final Stored Stock: %d\n", stored.Quantity)
	if stored.Quantity == 0 {
		fmt.Println("PASS: Stock clamped at 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", stored.Quantity)
	}

	_, logged := reloaded.Transactions(0, 1)
	if logged == totalRequests {
		fmt.Printf("PASS: %d transactions logged\n", logged)
	} else {
		fmt.Printf("FAIL: Expected %d transactions, got %d\n", totalRequests, logged)
	}
}

func openSlots(ctx context.Context, cfg config.Config) (port.SlotRepository, func(), error) {
	switch cfg.SlotBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil

	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return adapter, func() { db.Close() }, nil

	default:
		adapter, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return adapter, func() { adapter.Close() }, nil
	}
}
