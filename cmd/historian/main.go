// cmd/historian/main.go is an asynchronous historian service that pops lobby
// event records from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/store"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Historian drains the lobby event queue into the lobby_events table in
// batches.
type Historian struct {
	rdb        *redis.Client
	db         *store.Postgres
	queueName  string
	batchSize  int
	flushDelay time.Duration

	batchMu sync.Mutex
	batch   []events.Record

	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorian constructs a Historian from environment variables or defaults.
func NewHistorian(db *store.Postgres) *Historian {
	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	ctx, cancel := context.WithCancel(context.Background())
	return &Historian{
		rdb:        rdb,
		db:         db,
		queueName:  getEnv("EVENT_QUEUE_NAME", events.DefaultQueueName),
		batchSize:  batchSize,
		flushDelay: time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		batch:      make([]events.Record, 0, batchSize),
		ctx:        ctx,
		cancelFn:   cancel,
	}
}

// Run blocks consuming the queue until the process receives a termination
// signal, then flushes whatever is buffered.
func (h *Historian) Run() {
	go h.readRedisLoop()

	log.Println("faceoff-historian service started.")
	<-h.ctx.Done()
	h.flushBatch()
	log.Println("faceoff-historian shutting down.")
}

// Stop cancels the consume loop.
func (h *Historian) Stop() {
	h.cancelFn()
}

// readRedisLoop continuously uses BLPop to retrieve records from the Redis
// queue, flushing on a timer as well as on batch-size pressure.
func (h *Historian) readRedisLoop() {
	ticker := time.NewTicker(h.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case <-ticker.C:
			h.flushBatch()

		default:
			// BLPop with a short timeout so cancellation is handled.
			res, err := h.rdb.BLPop(h.ctx, 3*time.Second, h.queueName).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && h.ctx.Err() == nil {
					log.Printf("[ERROR] BLPop: %v", err)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record events.Record
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid event record: %v", err)
				continue
			}
			h.append(record)
		}
	}
}

func (h *Historian) append(record events.Record) {
	h.batchMu.Lock()
	h.batch = append(h.batch, record)
	full := len(h.batch) >= h.batchSize
	h.batchMu.Unlock()
	if full {
		h.flushBatch()
	}
}

// flushBatch writes the buffered records to the database in one transaction.
func (h *Historian) flushBatch() {
	h.batchMu.Lock()
	if len(h.batch) == 0 {
		h.batchMu.Unlock()
		return
	}
	batch := make([]events.Record, len(h.batch))
	copy(batch, h.batch)
	h.batch = h.batch[:0]
	h.batchMu.Unlock()

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, h.db.Pool(), pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batch {
			data, err := json.Marshal(rec.Data)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO lobby_events (event_type, device_id, data, created_at)
				VALUES ($1, $2, $3, $4)
			`, rec.EventType, rec.DeviceID, data, rec.Timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatch: %v", err)
		return
	}
	log.Printf("Flushed %d events to DB.", len(batch))
}

func main() {
	db, err := store.ConnectPostgres(context.Background())
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer db.Close()

	h := NewHistorian(db)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		h.Stop()
	}()

	h.Run()
}
