package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"roomsync/internal/adapters/crs"
	server "roomsync/internal/adapters/http_server"
	"roomsync/internal/adapters/observability"
	"roomsync/internal/adapters/ratelimit"
	"roomsync/internal/app"
	"roomsync/internal/domain"
	"roomsync/internal/shared"
	"roomsync/internal/storage/memory"
	mysqlrepo "roomsync/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	observability.Serve()

	store, catalog := buildStore(cfg)
	provider := buildProvider(cfg)
	limiter := buildLimiter(cfg)
	mapping := crs.NewMapping(cfg.RoomTypeCodes, cfg.RatePlanCodes)

	pricing := app.NewPricingEngine(catalog, app.PricingConfig{
		TaxThreshold: cfg.TaxThreshold,
		TaxHighPct:   cfg.TaxHighPct,
		TaxLowPct:    cfg.TaxLowPct,
	})
	avail := app.NewAvailabilityEngine(store, catalog)
	bookings := app.NewBookingService(store, catalog, avail, pricing, provider)
	confirm := app.NewConfirmService(store, catalog, provider, mapping, app.ConfirmPolicy{
		RetryCeiling:          cfg.RetryCeiling,
		WebhookConsumesBudget: cfg.WebhookConsumesBudget,
		SweepWorkers:          cfg.SweepWorkers,
	})

	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Bookings:      bookings,
		Avail:         avail,
		Confirm:       confirm,
		Provider:      provider,
		Limiter:       limiter,
		OperatorToken: cfg.OperatorToken,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Str("provider", cfg.Provider).Str("store", cfg.Store).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func buildStore(cfg shared.Config) (domain.BookingStore, domain.Catalog) {
	switch cfg.Store {
	case "memory":
		st := memory.New()
		seedDemoCatalog(st)
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return st, st
	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		if err := db.Ping(); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := mysqlrepo.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		log.Info().Msg("database ready")
		repo := mysqlrepo.New(db)
		return repo, repo
	}
}

func buildProvider(cfg shared.Config) domain.Provider {
	switch cfg.Provider {
	case "http":
		client, err := crs.NewClient(crs.Config{
			BaseURL: cfg.CRSBaseURL,
			APIKey:  cfg.CRSAPIKey,
			HotelID: cfg.CRSHotelID,
			Timeout: cfg.CRSTimeout,
			RPS:     cfg.CRSRPS,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize CRS client")
		}
		return client
	default:
		log.Warn().Msg("using mock CRS provider")
		return crs.NewMock()
	}
}

func buildLimiter(cfg shared.Config) domain.Limiter {
	if cfg.RateLimiter == "redis" {
		return ratelimit.NewRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	return ratelimit.NewMemory(cfg.RateLimitMax, cfg.RateLimitWindow)
}

// seedDemoCatalog gives the in-memory store something bookable.
func seedDemoCatalog(st *memory.Store) {
	st.SeedRoomType(domain.RoomType{
		ID: "rt-deluxe", Name: "Deluxe Double", Code: "DLX",
		BasePrice: 4200, MaxOccupancy: 3, Units: 10, Active: true,
	})
	st.SeedRatePlan(domain.RatePlan{
		ID: "rp-flex", RoomTypeID: "rt-deluxe", Name: "Flexible", Code: "FLEX",
		PriceModifierPct: 0, Active: true,
	})
	st.SeedRatePlan(domain.RatePlan{
		ID: "rp-adv", RoomTypeID: "rt-deluxe", Name: "Advance Purchase", Code: "ADV",
		PriceModifierPct: -15, MinStayNights: 2, Active: true,
	})
}
