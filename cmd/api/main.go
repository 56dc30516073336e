package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-seat-booking/internal/config"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-seat-booking/internal/server"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, cfg, metrics.Init())
	if err != nil {
		logger.Fatal("初期化に失敗しました", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("接続のクローズに失敗しました", zap.Error(err))
		}
	}()

	if app.Auditor != nil {
		go app.Auditor.Start(ctx)
	}

	app.Echo.Server.ReadTimeout = cfg.Server.ReadTimeout
	app.Echo.Server.WriteTimeout = cfg.Server.WriteTimeout

	// Graceful shutdown
	go func() {
		logger.Info("サーバーを起動します", zap.String("port", cfg.Server.Port))
		if err := app.Echo.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("サーバー起動エラー", zap.Error(err))
			stop()
		}
	}()

	// シグナル待機
	<-ctx.Done()
	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	if app.Auditor != nil {
		app.Auditor.Stop()
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
