// Package main is the operator command line: it grants or revokes staff
// rights and inspects the email dead-letter queue.
//
//	admin -username alice -staff=true
//	admin -dlq
//	admin -requeue-dlq 50
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roomledger/backend/config"
	"github.com/roomledger/backend/internal/accounts"
	"github.com/roomledger/backend/pkg/database"
	"github.com/roomledger/backend/pkg/queue"
	"github.com/roomledger/backend/pkg/redis"
)

func main() {
	username := flag.String("username", "", "user whose staff flag to update")
	staff := flag.Bool("staff", true, "grant (true) or revoke (false) staff rights")
	migrate := flag.Bool("migrate", false, "apply pending migrations first")
	dlq := flag.Bool("dlq", false, "print the number of dead-lettered email jobs")
	requeue := flag.Int("requeue-dlq", 0, "move up to N dead-lettered email jobs back to the queue")
	flag.Parse()

	if *username == "" && !*migrate && !*dlq && *requeue <= 0 {
		fmt.Fprintln(os.Stderr, "usage: admin [-username NAME [-staff=false]] [-migrate] [-dlq] [-requeue-dlq N]")
		os.Exit(2)
	}

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *migrate || *username != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 1}, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()

		if *migrate {
			if err := database.Migrate(ctx, pool, logger); err != nil {
				logger.Fatal("migrate", zap.Error(err))
			}
		}
		if *username != "" {
			if err := accounts.NewRepository(pool).SetStaff(ctx, *username, *staff); err != nil {
				logger.Fatal("set staff", zap.String("username", *username), zap.Error(err))
			}
			logger.Info("staff flag updated", zap.String("username", *username), zap.Bool("staff", *staff))
		}
	}

	if *dlq || *requeue > 0 {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		q := queue.NewQueue(rdb.Client, logger)

		if *requeue > 0 {
			n, err := q.RequeueDead(ctx, *requeue)
			if err != nil {
				logger.Fatal("requeue dead letters", zap.Int("moved", n), zap.Error(err))
			}
			fmt.Printf("requeued %d email jobs\n", n)
		}
		if *dlq {
			n, err := q.DeadLetters(ctx)
			if err != nil {
				logger.Fatal("count dead letters", zap.Error(err))
			}
			fmt.Printf("%d email jobs in %s\n", n, queue.QueueDLQ)
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
