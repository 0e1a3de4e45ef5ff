// The watchdog re-drives bookings stuck between payment and CRS confirmation.
// It runs the same sweep the admin endpoint exposes, on a schedule, against
// the shared store; concurrent sweeps are safe via the retry-count CAS.
package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"roomsync/internal/adapters/crs"
	"roomsync/internal/adapters/observability"
	"roomsync/internal/app"
	"roomsync/internal/domain"
	"roomsync/internal/shared"
	mysqlrepo "roomsync/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv, "watchdog")

	if cfg.Store != "mysql" {
		log.Fatal().Msg("watchdog requires the shared mysql store")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	repo := mysqlrepo.New(db)

	var provider domain.Provider
	if cfg.Provider == "http" {
		provider, err = crs.NewClient(crs.Config{
			BaseURL: cfg.CRSBaseURL,
			APIKey:  cfg.CRSAPIKey,
			HotelID: cfg.CRSHotelID,
			Timeout: cfg.CRSTimeout,
			RPS:     cfg.CRSRPS,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize CRS client")
		}
	} else {
		log.Warn().Msg("watchdog using mock CRS provider")
		provider = crs.NewMock()
	}

	mapping := crs.NewMapping(cfg.RoomTypeCodes, cfg.RatePlanCodes)
	confirm := app.NewConfirmService(repo, repo, provider, mapping, app.ConfirmPolicy{
		RetryCeiling: cfg.RetryCeiling,
		SweepWorkers: cfg.SweepWorkers,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Dur("interval", cfg.SweepInterval).Int("workers", cfg.SweepWorkers).Msg("watchdog starting")

	runSweep(ctx, confirm)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runSweep(ctx, confirm)
		case <-ctx.Done():
			log.Info().Msg("watchdog stopping")
			return
		}
	}
}

func runSweep(ctx context.Context, confirm *app.ConfirmService) {
	sum, err := confirm.SweepOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep failed")
		return
	}
	for _, o := range sum.Outcomes {
		observability.ObserveSweep(string(o.Outcome))
	}
	observability.SetAtRisk(sum.AtRisk)
	if sum.AtRisk > 0 {
		log.Warn().Int("count", sum.AtRisk).Msg("bookings at retry ceiling need operator attention")
	}
}
