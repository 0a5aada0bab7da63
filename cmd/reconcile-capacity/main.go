package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schoolhub/bulkops-backend/internal/capacity"
	"github.com/schoolhub/bulkops-backend/internal/config"
	"github.com/schoolhub/bulkops-backend/internal/database"
	"github.com/schoolhub/bulkops-backend/internal/logger"
	"github.com/schoolhub/bulkops-backend/internal/repository"
	"github.com/schoolhub/bulkops-backend/internal/service"
)

func main() {
	var tenant string
	flag.StringVar(&tenant, "tenant", "", "Tenant ID to reconcile (default: all tenants)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	var tenantID *uuid.UUID
	if tenant != "" {
		id, err := uuid.Parse(tenant)
		if err != nil {
			log.Fatal().Err(err).Str("tenant", tenant).Msg("Invalid tenant ID")
		}
		tenantID = &id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.BackgroundMaxDBConns, "reconcile", log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	classService := service.NewClassService(
		pool,
		repository.NewClassRepository(pool),
		repository.NewTenantRepository(pool),
		capacity.NewChecker(log, nil),
		nil,
		log,
	)

	res, err := classService.Reconcile(ctx, tenantID)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	fmt.Printf("Reconciled: %d class counters, %d tenant counters corrected\n", res.ClassesUpdated, res.TenantsUpdated)
}
