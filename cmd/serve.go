package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"orderdesk/analytics"
	"orderdesk/database"
	"orderdesk/events"
	"orderdesk/handlers"
	"orderdesk/lifecycle"
	"orderdesk/middleware"
	"orderdesk/reports"
	"orderdesk/routes"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and realtime feed",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ServeReady(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := database.OpenStore(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer closeStore()

	bus, err := newBus(cfg)
	if err != nil {
		return err
	}
	if err := bus.Start(ctx); err != nil {
		return err
	}
	dispatcher := events.NewDispatcher(bus, cfg.EventBuffer, 5*time.Second)
	dispatcher.Start()

	svc, err := newForecastService(cfg)
	if err != nil {
		return err
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		return err
	}

	orders := lifecycle.NewController(st, dispatcher, lifecycle.WithDeliveryFee(cfg.DeliveryFee))
	agg := analytics.NewAggregator(st,
		analytics.WithMaxRangeDays(cfg.AnalyticsMaxRangeDays),
		analytics.WithDefaultRangeDays(cfg.AnalyticsDefaultRangeDays),
	)
	rep := reports.NewService(agg, newEngine(cfg, svc), archiver, cfg.ForecastHorizon)

	limiter := middleware.NewRefreshLimiter(cfg.RefreshMinInterval)
	defer limiter.Stop()

	h := &handlers.Handler{
		Orders:       orders,
		Analytics:    agg,
		Reports:      rep,
		Bus:          bus,
		ForecastWait: cfg.ForecastTimeout + 5*time.Second,
		Version:      Version,
		StoreDriver:  cfg.StoreDriver,
		Ping: func(ctx context.Context) error {
			_, err := st.CountCustomers(ctx)
			return err
		},
	}

	app := fiber.New(fiber.Config{
		AppName:      "orderdesk " + Version,
		ErrorHandler: handlers.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	routes.SetupRoutes(app, h, limiter)

	listenErr := make(chan error, 1)
	go func() {
		log.Printf("🚀 orderdesk %s listening on %s", Version, cfg.Addr)
		listenErr <- app.Listen(cfg.Addr)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Drain queued events, then end the SSE streams so the listener can close.
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Printf("[EVENTS] dispatcher: %v", err)
	}
	if err := bus.Stop(); err != nil {
		log.Printf("[EVENTS] bus: %v", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	rep.Wait()
	return nil
}
