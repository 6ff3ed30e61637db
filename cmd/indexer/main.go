package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go_seoindex/api/v1"
	apiindexing "go_seoindex/api/v1/indexing"
	"go_seoindex/internal/auth"
	"go_seoindex/internal/cache"
	"go_seoindex/internal/config"
	"go_seoindex/internal/db"
	"go_seoindex/internal/indexing"
	"go_seoindex/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	iniPath := flag.String("config", "", "path to INI config file (env overrides)")
	issueFor := flag.String("issue-token", "", "print an operator token for the given name and exit")
	scope := flag.String("scope", auth.ScopeWrite, "scope for -issue-token")
	flag.Parse()

	// 1. Load configuration
	var cfg *config.Config
	var err error
	if *iniPath != "" {
		cfg, err = config.LoadFromINI(*iniPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	tm := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpireMinutes)*time.Minute)
	if *issueFor != "" {
		token, err := tm.Issue(*issueFor, *scope)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(logger).WithField("service", "seoindex")

	ctx := context.Background()

	// 2. Initialize Redis
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer rdb.Close()
	store := cache.NewRedisStore(rdb)

	// 3. Initialize MySQL (optional, only reindex-all needs it)
	var tenants apiindexing.SlugSource
	if cfg.MySQL.DSN != "" {
		gdb, err := db.OpenMySQL(cfg.MySQL.DSN)
		if err != nil {
			log.Fatalf("Failed to initialize MySQL: %v", err)
		}
		defer db.Close(gdb)

		if cfg.Migrate {
			if err := db.Migrate(gdb); err != nil {
				log.Fatalf("Failed to migrate database: %v", err)
			}
		}
		tenants = tenant.NewSource(gdb)
	} else {
		log.Println("MYSQL_DSN not set, reindex-all disabled")
	}

	// 4. Build indexing engines
	ic := cfg.Indexing
	client := &http.Client{Timeout: time.Duration(ic.HTTPTimeoutSec) * time.Second}
	ledger := indexing.NewLedger(store, entry)

	creds := indexing.LoadCredentials(ic.GoogleKeys, ic.GoogleDailyQuota, entry)
	pool := indexing.NewPool(&indexing.PoolConfig{
		Credentials: creds,
		Store:       store,
		Logger:      entry,
		Cooldown:    time.Duration(ic.CooldownSec) * time.Second,
	})
	defer pool.Close()
	log.Printf("✓ Loaded %d indexing credentials", pool.Size())

	orch := indexing.NewOrchestrator(&indexing.Config{
		Primary: indexing.NewPrimaryEngine(&indexing.PrimaryConfig{
			Pool:      pool,
			Ledger:    ledger,
			Client:    client,
			Logger:    entry,
			Endpoint:  ic.GoogleEndpoint,
			TokenURL:  ic.GoogleTokenURL,
			CallDelay: time.Duration(ic.CallDelayMs) * time.Millisecond,
		}),
		Broadcast: indexing.NewBroadcastEngine(&indexing.BroadcastConfig{
			Key:       ic.IndexNowKey,
			Endpoints: ic.IndexNowEndpoints,
			Ledger:    ledger,
			Client:    client,
			Logger:    entry,
		}),
		Sitemap:        indexing.NewSitemapPinger(ic.PingEndpoint, ledger, client, entry),
		Pool:           pool,
		Ledger:         ledger,
		Logger:         entry,
		PlatformDomain: ic.PlatformDomain,
		ChunkSize:      ic.BatchChunkSize,
		ChunkDelay:     time.Duration(ic.BatchDelayMs) * time.Millisecond,
	})

	// 5. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	v1.SetupRouter(r, tm, apiindexing.NewHandler(orch, tenants, entry))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Let background reindex jobs and pings finish
	orch.Wait()
	log.Println("✓ Server exited")
}
