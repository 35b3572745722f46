package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/thermalink/thermalink/internal/api/handlers"
	"github.com/thermalink/thermalink/internal/api/middleware"
	"github.com/thermalink/thermalink/internal/archive"
	"github.com/thermalink/thermalink/internal/ble"
	"github.com/thermalink/thermalink/internal/config"
	"github.com/thermalink/thermalink/internal/core"
	"github.com/thermalink/thermalink/internal/db"
	"github.com/thermalink/thermalink/internal/logging"
	"github.com/thermalink/thermalink/internal/transport"
	"github.com/thermalink/thermalink/internal/webhook"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid config")
	}

	log := logging.New(cfg.Logging)
	log.WithField("version", version).Info("starting thermalink")

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	central, err := ble.NewCentral(cfg.Printer.CharacteristicUUID, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize bluetooth adapter")
	}

	session := transport.NewSession(transport.SessionConfig{
		Address:          cfg.Printer.Address,
		ServiceUUID:      cfg.Printer.ServiceUUID,
		ChunkSize:        cfg.Printer.ChunkSize,
		ChunkDelay:       cfg.Printer.ChunkDelay,
		WriteTimeout:     cfg.Printer.WriteTimeout,
		ConnectTimeout:   cfg.Printer.ConnectTimeout,
		ConnectRetries:   cfg.Printer.ConnectRetries,
		ConnectBackoff:   cfg.Printer.ConnectBackoff,
		DiscoveryTimeout: cfg.Printer.DiscoveryTimeout,
	}, central, central, log)

	sender := webhook.NewSender(webhook.SenderConfig{}, log)
	sender.Start()
	defer sender.Stop()

	queue := core.NewQueue(session, &cfg.Queue, sender, log)
	if err := queue.Start(); err != nil {
		log.WithError(err).Fatal("failed to start job queue")
	}
	defer queue.Stop()

	archiver, err := archive.NewArchiver(archive.Config{
		ArchivePath: cfg.Archive.Path,
		ArchiveDays: cfg.Archive.Days,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize archiver")
	}
	archiver.Start()
	defer archiver.Stop()

	auth, err := middleware.NewAuthMiddleware()
	if err != nil {
		log.WithError(err).Fatal("failed to initialize auth")
	}

	router := setupRouter(cfg, auth, session, queue, central)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}

	session.Disconnect()
}

func setupRouter(cfg *config.Config, auth *middleware.AuthMiddleware, session *transport.Session, queue *core.Queue, central *ble.Central) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	printHandler := handlers.NewPrintHandler(queue)
	jobHandler := handlers.NewJobHandler(queue)
	statusHandler := handlers.NewStatusHandler(session, queue, central, cfg.Printer.ServiceUUID, cfg.Printer.DiscoveryTimeout, version)
	webhookHandler := handlers.NewWebhookHandler()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/v1/auth")
	{
		authGroup.POST("/setup", auth.SetupHandler)
		authGroup.POST("/login", auth.LoginHandler)
		authGroup.POST("/logout", auth.LogoutHandler)
		authGroup.GET("/status", auth.StatusHandler)
		authGroup.POST("/password", auth.RequireAuth(), auth.ChangePasswordHandler)
	}

	api := router.Group("/api/v1")
	api.Use(auth.RequireAuth())
	{
		api.POST("/print/text", printHandler.PrintText)
		api.POST("/print/qrcode", printHandler.PrintQRCode)
		api.POST("/print/barcode", printHandler.PrintBarcode)
		api.POST("/print/feed", printHandler.Feed)

		api.GET("/jobs", jobHandler.ListJobs)
		api.GET("/jobs/:id", jobHandler.GetJob)
		api.POST("/jobs/:id/cancel", jobHandler.CancelJob)
		api.POST("/jobs/:id/retry", jobHandler.RetryJob)

		api.GET("/status", statusHandler.GetStatus)
		api.POST("/discover", statusHandler.Discover)

		api.GET("/webhooks", webhookHandler.ListWebhooks)
		api.POST("/webhooks", webhookHandler.CreateWebhook)
		api.DELETE("/webhooks/:id", webhookHandler.DeleteWebhook)
	}

	return router
}
