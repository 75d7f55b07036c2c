// Package main runs the development chat backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/config"
	"github.com/chatportal/conversation-core/internal/stubserver"
	"github.com/chatportal/conversation-core/pkg/logger"
	"github.com/chatportal/conversation-core/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting stub chat backend")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-stubserver", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	var responder stubserver.Responder = stubserver.CannedResponder{}
	if cfg.LMStudioURL != "" {
		responder = stubserver.NewOpenAICompatibleResponder(cfg.LMStudioURL, cfg.OpenAIAPIKey)
		log.Info("using local LLM for replies", zap.String("base_url", cfg.LMStudioURL))
	} else {
		log.Info("no local LLM configured, using canned replies")
	}

	store := stubserver.NewStore()
	srv := stubserver.New(store, responder, log, stubserver.Options{
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	if cfg.IdleEndWindow > 0 {
		go func() {
			ticker := time.NewTicker(cfg.IdleSweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				if n := store.EndIdle(cfg.IdleEndWindow); n > 0 {
					log.Info("ended idle conversations", zap.Int("count", n))
				}
			}
		}()
		log.Info("idle auto-end enabled",
			zap.Duration("window", cfg.IdleEndWindow),
			zap.Duration("interval", cfg.IdleSweepInterval),
		)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
