package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"dut-dashboard-service/internal/dashboard/api"
	"dut-dashboard-service/internal/dashboard/bridge"
	"dut-dashboard-service/internal/dashboard/cache"
	"dut-dashboard-service/internal/dashboard/catalog"
	"dut-dashboard-service/internal/dashboard/config"
	"dut-dashboard-service/internal/dashboard/coordinator"
	"dut-dashboard-service/internal/dashboard/events"
	"dut-dashboard-service/internal/dashboard/gateway"
	"dut-dashboard-service/internal/dashboard/hub"
	"dut-dashboard-service/internal/dashboard/models"
	"dut-dashboard-service/internal/dashboard/scheduler"
	"dut-dashboard-service/internal/dashboard/store"
	gorm_db "dut-dashboard-service/pkg/db"
)

func main() {
	stdlog.Println("DUT Dashboard Service starting...")

	settings := config.Load()

	appCtx, appCancel := context.WithCancel(context.Background())

	cat := catalog.New(settings.CommandsFile)
	if err := cat.Load(); err != nil {
		stdlog.Fatalf("Failed to load preset catalog: %v", err)
	}

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	if err := gorm_db.AutoMigrate(gormDB, &store.TargetPresetAssignment{}); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}

	assignments := store.NewAssignmentStore(gormDB, cat)
	resultCache := cache.New(settings.StalenessWindow)
	gw := gateway.New(settings)
	registry := coordinator.NewRegistry()
	wsHub := hub.New()

	fanout := events.Fanout{wsHub}
	var publisher *bridge.Publisher
	var stateFeed *bridge.StateFeed
	if settings.KafkaEnabled {
		publisher = bridge.NewPublisher(settings)
		fanout = append(fanout, publisher)
	}

	engine, err := scheduler.NewEngine(gw, resultCache, registry, assignments, cat, fanout, settings.ExecTimeout)
	if err != nil {
		stdlog.Fatalf("Failed to create scheduler engine: %v", err)
	}

	broadcastTargetUpdate := func(target models.Target) {
		target.ScheduledOutputs = resultCache.OutputsFor(target.Name)
		fanout.Broadcast(target.Name, events.Event{Type: events.TypeTargetUpdate, Data: target})
	}

	poller := &coordinator.Poller{
		Gateway:  gw,
		Registry: registry,
		Interval: settings.PollInterval,
		OnChange: func(changed []models.Target, removed []string) {
			for _, target := range changed {
				broadcastTargetUpdate(target)
			}
			for _, name := range removed {
				resultCache.InvalidateAllFor(name)
			}
			engine.Reconcile()
		},
	}
	poller.Start(appCtx)

	if settings.KafkaEnabled {
		stateFeed = bridge.NewStateFeed(settings, registry)
		stateFeed.OnChange = func(target models.Target) {
			broadcastTargetUpdate(target)
			engine.Reconcile()
		}
		stateFeed.StartConsuming(appCtx)
	}

	engine.Start()

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(settings.ServerAddr), server.WithExitWaitTime(5*time.Second))

	targetHandler := api.NewTargetHandler(registry, resultCache, cat, assignments, gw, fanout, settings.ExecTimeout)
	presetHandler := api.NewPresetHandler(cat, assignments, resultCache, engine, registry)
	healthHandler := api.NewHealthHandler(poller, settings.GatewayMode == gateway.GatewayModeMock)
	wsHandler := api.NewWSHandler(wsHub, targetHandler)

	targetGroup := h.Group("/targets")
	{
		targetGroup.GET("", targetHandler.GetTargets)
		targetGroup.GET("/scheduled-commands", presetHandler.GetScheduledCommands)
		targetGroup.GET("/:name", targetHandler.GetTargetByName)
		targetGroup.GET("/:name/commands", targetHandler.GetTargetCommands)
		targetGroup.POST("/:name/execute", targetHandler.ExecuteCommand)
		targetGroup.GET("/:name/preset", presetHandler.GetTargetPreset)
		targetGroup.PUT("/:name/preset", presetHandler.SetTargetPreset)
	}
	presetGroup := h.Group("/presets")
	{
		presetGroup.GET("", presetHandler.GetPresets)
		presetGroup.GET("/:id", presetHandler.GetPresetByID)
	}
	adminGroup := h.Group("/admin")
	adminGroup.POST("/reload", presetHandler.ReloadCatalog)

	h.GET("/ws", wsHandler.Serve)
	h.GET("/health", healthHandler.Health)
	h.GET("/ping", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		appCancel()

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		engine.Stop()

		if stateFeed != nil {
			stateFeed.Close()
		}
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				hlog.Errorf("Kafka publisher close error: %v", err)
			}
		}
		hlog.Info("DUT Dashboard gracefully shut down.")
	}()

	hlog.Infof("DUT Dashboard Service fully initialized, starting Hertz server on %s...", settings.ServerAddr)
	h.Spin()

	stdlog.Println("DUT Dashboard Service has been shut down.")
}
