package main

import (
	"context"
	"log"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valyala/fasthttp"

	"adsinsight/internal/config"
	"adsinsight/internal/db"
	"adsinsight/internal/googleads"
	"adsinsight/internal/http/handlers"
	appmw "adsinsight/internal/http/middleware"
	"adsinsight/internal/ingest"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}
	if cfg.IngestSecret == "" {
		log.Printf("warning: APP_INGEST_SECRET is empty; /ingest/bulk will reject every call")
	}
	if cfg.JWTSecret == "" {
		log.Printf("warning: APP_JWT_SECRET is empty; bearer tokens cannot be issued")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ingest.NewMetrics(registry)

	coordinator := ingest.NewCoordinator(db.NewIngestStore(sqlDB), cfg.IngestBatchSize, metrics)

	findClient := func(ctx context.Context, id uuid.UUID) (*db.Client, error) {
		return db.FindClient(ctx, sqlDB, id)
	}
	syncer := googleads.NewSyncer(
		googleads.NewClient(cfg.GoogleAds),
		googleads.NewConnectionCache(cfg.GoogleAds.CacheTTL),
		findClient,
		coordinator,
		cfg.GoogleAds.LoginCustomerID,
	)

	bearer := appmw.BearerAuth(appmw.GormUsers(sqlDB), cfg)
	owned := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return bearer(appmw.ClientAccess(findClient)(h))
	}

	r := router.New()

	handler := handlers.RequestLogger(r.Handler)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler(registry))

	r.POST("/ingest/bulk", appmw.IngestSecret(cfg)(handlers.BulkIngest(coordinator)))

	r.POST("/v1/auth/token", handlers.IssueToken(sqlDB, cfg))
	r.POST("/v1/auth/password", bearer(handlers.ChangePassword(sqlDB, cfg)))

	r.POST("/v1/users", bearer(handlers.CreateUser(sqlDB)))
	r.DELETE("/v1/users/{id}", bearer(handlers.DeleteUser(sqlDB, cfg)))

	r.POST("/v1/clients", bearer(handlers.CreateClient(sqlDB)))
	r.GET("/v1/clients", bearer(handlers.ListClients(sqlDB)))

	r.POST("/v1/clients/{clientId}/imports/csv", owned(handlers.UploadCSV(coordinator)))
	r.GET("/v1/clients/{clientId}/imports", owned(handlers.ListImports(sqlDB)))
	r.GET("/v1/clients/{clientId}/export.zip", owned(handlers.ExportBundle(sqlDB)))
	r.GET("/v1/clients/{clientId}/export/{dataset}", owned(handlers.ExportDataset(sqlDB)))
	r.GET("/v1/clients/{clientId}/kpis", owned(handlers.KPIs(sqlDB, cfg)))
	r.POST("/v1/clients/{clientId}/sync", owned(handlers.SyncClient(syncer)))

	server := &fasthttp.Server{
		Handler:            handler,
		Name:               "adsinsight",
		MaxRequestBodySize: 32 << 20,
	}

	log.Printf("adsinsight listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
