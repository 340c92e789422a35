package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"smsrelay/api"
	"smsrelay/bot"
	"smsrelay/config"
	"smsrelay/service"

	"github.com/gin-gonic/gin"
)

// setupLogging creates a log file in the log directory with timestamp
// Returns the log file handle (caller should defer Close())
func setupLogging() (*os.File, error) {
	logDir := "log"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, timestamp+".log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Write to both console and file
	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	log.Printf("📝 Logging to: %s", logPath)
	return logFile, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Printf("Warning: Failed to setup file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting SMS Relay Backend...")
	cfg := config.Load()

	// State containers
	registry := service.NewDeviceRegistry()
	queue, err := service.NewCommandQueue(filepath.Join(cfg.StorageDir, "commandQueue.json"))
	if err != nil {
		log.Fatal("Failed to open command queue:", err)
	}
	db, err := config.InitDatabase(filepath.Join(cfg.StorageDir, config.DatabaseFile))
	if err != nil {
		log.Fatal("Failed to open inbox database:", err)
	}
	defer db.Close()

	dispatcher := service.NewRelayDispatcher(
		registry, queue, service.NewSessionStore(), service.NewInboxStore(db),
		cfg.AdminChats, cfg.NotifyUnboundTransitions,
	)

	// Operator channel
	var tg *bot.Bot
	if cfg.BotToken != "" {
		tg, err = bot.New(cfg.BotToken, dispatcher, cfg.AdminChats)
		if err != nil {
			log.Fatal("Failed to start bot:", err)
		}
		dispatcher.SetNotifier(tg)
		go tg.Run()
		go tg.RunStatusDigest(cfg.SweepPeriod)
	} else {
		log.Println("⚠️ BOT_TOKEN not set, running headless (notifications go to the log)")
	}

	// Device push transport
	hub := api.NewDeviceHub(dispatcher)
	dispatcher.SetPusher(hub)
	go hub.Run()

	// Presence sweep
	monitor := service.NewPresenceMonitor(registry, cfg.OfflineThreshold, cfg.SweepPeriod, dispatcher.DeviceWentOffline)
	go monitor.Run()

	// HTTP device boundary
	router := gin.Default()
	api.SetupRoutes(router, dispatcher, hub)

	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		log.Printf("✅ Server running on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Shut down cleanly: finish the in-flight sweep, then stop transports.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	monitor.Stop()
	if tg != nil {
		tg.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Bye")
}
