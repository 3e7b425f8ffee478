package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaasu2002/order-matching-system/api"
	"github.com/vaasu2002/order-matching-system/cache"
	"github.com/vaasu2002/order-matching-system/engine"
	"github.com/vaasu2002/order-matching-system/logging"
	"github.com/vaasu2002/order-matching-system/models"
	"github.com/vaasu2002/order-matching-system/persistence"
)

func main() {
	log := logging.InitLogger()

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		if parsed, err := strconv.Atoi(portStr); err == nil {
			port = parsed
		}
	}

	symbol := os.Getenv("SYMBOL")
	if symbol == "" {
		symbol = "BTC-USD"
	}

	book := engine.NewOrderBook(symbol)
	idSeed := uint64(0)

	// Postgres is optional: without it the engine runs purely in memory
	// and the journal, trade history and health checks degrade.
	var db *sql.DB
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		opened, err := persistence.Open(dsn)
		if err != nil {
			log.WithField("error", err.Error()).Warn("PostgreSQL unavailable, continuing without persistence")
		} else {
			db = opened
			defer db.Close()
		}
	}

	if db != nil {
		store := persistence.NewPostgresStore(db)

		// Rebuild the resting book from the orders table before the
		// journals attach, so recovery does not re-journal orders that
		// are already on record.
		recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 30*time.Second)
		report, err := persistence.RecoverOrderBook(recoverCtx, store, book)
		cancelRecover()
		if err != nil {
			log.WithField("error", err.Error()).Warn("Order book recovery failed, starting with an empty book")
		} else {
			idSeed = report.MaxOrderID
		}

		eventStore := persistence.NewOrderEventStore(store)
		defer eventStore.Close()
		book.AddOrderListener(eventStore)

		tradeJournal := persistence.NewTradeJournal(store)
		defer tradeJournal.Close()
		book.AddTradeListener(tradeJournal)
	}

	ids := models.NewIDGenerator(idSeed)

	// Redis is optional too: without it there is no market data cache,
	// no pub/sub fan-out and no idempotent order submission.
	var redisCache *cache.RedisCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config := cache.DefaultRedisCacheConfig()
		if host, portStr, err := net.SplitHostPort(addr); err == nil {
			config.Host = host
			if p, err := strconv.Atoi(portStr); err == nil {
				config.Port = p
			}
		}
		config.Password = os.Getenv("REDIS_PASSWORD")

		opened, err := cache.NewRedisCache(config)
		if err != nil {
			log.WithField("error", err.Error()).Warn("Redis unavailable, continuing without cache")
		} else {
			redisCache = opened
			defer redisCache.Close()
		}
	}

	var publisher *cache.MarketDataPublisher
	if redisCache != nil {
		marketCache := cache.NewMarketDataCache(redisCache)
		publisher = cache.NewMarketDataPublisher(redisCache, marketCache)
		defer publisher.Close()

		book.AddTradeListener(publisher)
		book.AddDepthListener(publisher)
	}

	router := api.NewRouter(book, ids, db, redisClientOf(redisCache))

	feed := router.Feed()
	book.AddTradeListener(feed)
	book.AddDepthListener(feed)
	book.AddOrderListener(feed)

	// Periodically refresh the Redis market data documents so readers that
	// poll the cache instead of the API stay current.
	stopRefresh := make(chan struct{})
	if publisher != nil {
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					publisher.RefreshCaches(book)
				case <-stopRefresh:
					return
				}
			}
		}()
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.LogServerStarted(port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("error", err.Error()).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	close(stopRefresh)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithField("error", err.Error()).Error("Shutdown error")
	}
	logging.LogServerStopped()
}

func redisClientOf(rc *cache.RedisCache) *redis.Client {
	if rc == nil {
		return nil
	}
	return rc.GetClient()
}
