package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timesheet/internal/attendance"
	"timesheet/internal/config"
	"timesheet/internal/notify"
	"timesheet/internal/queue"
	"timesheet/internal/request"
	"timesheet/internal/store"
)

// Worker consumes queue messages, refreshing cached monthly summaries and
// delivering decision notifications to the configured webhook.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "timesheet:events")
	}

	att := attendance.NewService(attendance.NewRepository(db.Client), cfg.Location(), cfg.StandardWorkMinutes, cfg.DefaultBreak)
	reqRepo := request.NewRepository(db.Client)
	webhook := notify.New(cfg.NotifyWebhookURL, cfg.NotifySkip)

	if !cfg.NotifySkip {
		if err := webhook.Health(ctx); err != nil {
			log.Printf("WARNING: notify webhook not available: %v", err)
		} else {
			log.Println("notify webhook reachable")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		switch msg.Type {
		case queue.TypeSummary:
			refreshSummary(ctx, att, redisClient, msg, cfg.SummaryCacheTTL)
		case queue.TypeDecision:
			sendDecision(ctx, reqRepo, webhook, msg.RequestID)
		default:
			log.Printf("unknown message type %q", msg.Type)
		}
	}

	log.Println("worker stopped")
}

func refreshSummary(ctx context.Context, att *attendance.Service, r *store.Redis, msg queue.Message, ttl time.Duration) {
	if msg.UserID == "" || msg.Month == "" {
		log.Printf("summary message missing user or month")
		return
	}
	report, err := att.Month(ctx, msg.UserID, msg.Month)
	if err != nil {
		log.Printf("summary recompute failed for %s %s: %v", msg.UserID, msg.Month, err)
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		log.Printf("summary marshal failed: %v", err)
		return
	}
	if err := r.PutSummary(ctx, msg.UserID, msg.Month, payload, ttl); err != nil {
		log.Printf("summary cache write failed: %v", err)
		return
	}
	log.Printf("summary refreshed for %s %s", msg.UserID, msg.Month)
}

func sendDecision(ctx context.Context, repo *request.Repository, webhook *notify.Client, requestID string) {
	req, err := repo.Get(ctx, requestID)
	if err != nil {
		log.Printf("fetch request %s failed: %v", requestID, err)
		return
	}
	if req == nil {
		log.Printf("request %s no longer exists", requestID)
		return
	}

	err = webhook.Send(ctx, notify.Decision{
		RequestID:  req.ID,
		Applicant:  req.Applicant,
		UserID:     req.UserID,
		TargetDate: req.TargetDate,
		Status:     string(req.Status),
		DecidedAt:  req.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("decision notify failed for %s: %v", requestID, err)
		return
	}
	log.Printf("decision for %s delivered (%s)", requestID, req.Status)
}
