package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syncrospace/office-server/internal/config"
	"github.com/syncrospace/office-server/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var opts []server.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
		}
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)
		opts = append(opts, server.WithRedis(rdb))
	}

	srv := server.New(cfg, opts...)
	log.Printf("Starting SyncroSpace office server on %s", cfg.ListenAddr)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
