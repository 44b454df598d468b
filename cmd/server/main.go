package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/lucidlylabs/vaultgate/internal/chain"
	"github.com/lucidlylabs/vaultgate/internal/config"
	"github.com/lucidlylabs/vaultgate/internal/handler"
	"github.com/lucidlylabs/vaultgate/internal/ledger"
	"github.com/lucidlylabs/vaultgate/internal/middleware"
	"github.com/lucidlylabs/vaultgate/internal/pkg/apperrors"
	"github.com/lucidlylabs/vaultgate/internal/pkg/logger"
	"github.com/lucidlylabs/vaultgate/internal/repository"
	"github.com/lucidlylabs/vaultgate/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// Cache: redis when configured, in-process otherwise.
	var cache repository.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := repository.NewRedisCache(cfg)
		if err == nil {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
			cache = redisCache
		} else {
			logger.Error("redis unavailable, falling back to memory cache", "error", err)
		}
	}
	if cache == nil {
		cache = repository.NewMemoryCache()
	}

	// Withdrawal history: postgres when configured.
	var history repository.HistoryRepo
	if cfg.Database.DSN != "" {
		pgHistory, err := repository.NewPostgresHistoryRepo(cfg)
		if err == nil {
			logger.Info("connected to postgres")
			history = pgHistory
		} else {
			logger.Error("postgres unavailable, withdrawal history kept in memory", "error", err)
		}
	}
	if history == nil {
		history = repository.NewMemoryHistoryRepo()
	}

	// Endpoint pool over the union of all configured networks.
	pool := chain.NewPool(time.Duration(cfg.Chain.CallTimeoutMs) * time.Millisecond)
	chainIDs := make(map[string]int64)
	for _, s := range cfg.Strategies {
		for name, n := range s.Networks {
			pool.AddNetwork(name, n.RPCEndpoints)
			chainIDs[name] = n.ChainID
		}
	}
	defer pool.Close()

	reader := chain.NewReader(pool)
	watcher := chain.NewWatcher(pool)

	var sender chain.TxSender
	if cfg.Wallet.PrivateKey != "" {
		keySender, err := chain.NewKeySender(pool, cfg.Wallet.PrivateKey, chainIDs, cfg.Wallet.ActiveNetwork)
		if err != nil {
			log.Fatalf("Failed to initialize wallet signer: %v", err)
		}
		sender = keySender
	} else {
		logger.Warn("no wallet key configured, withdrawal submission is disabled")
		sender = readonlySender{}
	}

	ledgerClient := ledger.New(cfg.Ledger.BaseURL, time.Duration(cfg.Ledger.TimeoutMs)*time.Millisecond)

	rates := service.NewRateService(reader, cache, cfg.Aggregation)
	aggregator := service.NewAggregator(reader, rates, cache, cfg.Aggregation)
	withdrawals := service.NewWithdrawalService(cfg.Withdraw, reader, sender, watcher, aggregator, ledgerClient, history)
	canceller := service.NewCanceller(ledgerClient, sender, watcher, cfg.Withdraw)

	portfolioHandler := handler.NewPortfolioHandler(cfg, aggregator, rates)
	withdrawHandler := handler.NewWithdrawHandler(cfg, withdrawals, history)
	requestsHandler := handler.NewRequestsHandler(cfg, ledgerClient, canceller)
	streamHandler := handler.NewStreamHandler(withdrawals)
	walletHandler := handler.NewWalletHandler(cfg, sender)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(cfg.Server))
	{
		v1.GET("/portfolio/:wallet", portfolioHandler.GetPortfolio)
		v1.GET("/strategies/:id/balance/:wallet", portfolioHandler.GetBalance)
		v1.GET("/strategies/:id/rate", portfolioHandler.GetRate)

		v1.POST("/withdrawals", withdrawHandler.Start)
		v1.GET("/withdrawals/history", withdrawHandler.History)
		v1.GET("/withdrawals/:id", withdrawHandler.Status)
		v1.POST("/withdrawals/:id/confirm", withdrawHandler.Confirm)
		v1.POST("/withdrawals/:id/preview", withdrawHandler.Preview)
		v1.POST("/withdrawals/:id/reset", withdrawHandler.Reset)
		v1.GET("/withdrawals/:id/stream", streamHandler.Stream)

		v1.GET("/requests", requestsHandler.List)
		v1.POST("/requests/:id/cancel", requestsHandler.Cancel)

		v1.GET("/wallet/network", walletHandler.Network)
		v1.POST("/wallet/network", walletHandler.SwitchNetwork)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("vaultgate listening", "port", cfg.Server.Port, "strategies", len(cfg.Strategies))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

// readonlySender refuses submissions when no signing key is configured.
type readonlySender struct{}

func (readonlySender) Address() common.Address { return common.Address{} }
func (readonlySender) ActiveNetwork() string { return "" }
func (readonlySender) SendTransaction(_ context.Context, _ string, _ common.Address, _ []byte) (common.Hash, error) {
	return common.Hash{}, apperrors.New(apperrors.ErrInvalidConfig, "no wallet key configured", nil)
}
