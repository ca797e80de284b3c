// Command reefserver serves image classification, patch stress assessment
// and scan history over HTTP.
//
// Usage: reefserver [options]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"reefscan/internal/config"
	"reefscan/internal/logging"
	"reefscan/internal/predict"
	"reefscan/internal/scan"
	"reefscan/internal/server"
	"reefscan/internal/version"
)

var (
	flagConfig   = flag.String("config", "", "Config file (default reefscan.yaml if present)")
	flagAddr     = flag.String("addr", "", "Listen address")
	flagModel    = flag.String("model", "", "Artifact to serve")
	flagModelDir = flag.String("model-dir", "", "Directory holding the DNN trunk files, if moved")
	flagVerbose  = flag.Bool("v", false, "Verbose logging")
	flagVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *flagVersion {
		fmt.Println(version.String("reefserver"))
		return
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *flagAddr != "" {
		cfg.Server.Addr = *flagAddr
	}
	if *flagModel != "" {
		cfg.Server.ModelPath = *flagModel
	}
	if *flagVerbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Infow("starting", "version", version.String("reefserver"))

	p, err := predict.Load(cfg.Server.ModelPath, predict.Options{ModelDir: *flagModelDir}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading model: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	db, err := scan.Open(cfg.DBOptions(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.Server.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err = predict.DialRedis(ctx, cfg.Server.RedisAddr, cfg.Server.RedisPass, cfg.Server.RedisDB)
		cancel()
		if err != nil {
			log.Warnw("redis unavailable, running without prediction cache", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}
	cls := predict.NewCachingClassifier(rdb, cfg.Server.CacheTTL, p, cfg.Server.CacheSpace)

	h, err := server.NewHandler(cls, scan.NewStore(db), cfg.Server.MaxUploadMB, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating handler: %v\n", err)
		os.Exit(1)
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewRouter(h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("listening", "addr", cfg.Server.Addr, "model", p.ModelID(), "cache", rdb != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown failed", "error", err)
	}
	log.Infow("stopped")
}
