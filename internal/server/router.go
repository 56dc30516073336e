package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanosuguru/go-event-seat-booking/internal/api"
	"github.com/sanosuguru/go-event-seat-booking/internal/api/handler"
	"github.com/sanosuguru/go-event-seat-booking/internal/api/middleware"
	"github.com/sanosuguru/go-event-seat-booking/internal/config"
	"github.com/sanosuguru/go-event-seat-booking/internal/pkg/metrics"
)

// Services はHTTPハンドラーが使うアプリケーションサービス
type Services struct {
	Events   handler.EventServiceInterface
	Bookings handler.BookingServiceInterface
	Ledger   handler.LedgerServiceInterface
}

// NewRouter はルーティングとミドルウェアを設定したEchoを作成する
func NewRouter(svc Services, cfg config.ServerConfig, m *metrics.Metrics, checks map[string]handler.HealthCheck) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e)
	if m != nil {
		e.Use(middleware.PrometheusMiddleware(m))
	}

	eventHandler := handler.NewEventHandler(svc.Events)
	bookingHandler := handler.NewBookingHandler(svc.Bookings)
	availabilityHandler := handler.NewAvailabilityHandler(svc.Ledger)
	healthHandler := handler.NewHealthHandler(checks)

	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(cfg.MetricsUser, cfg.MetricsPassword))

	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/events", eventHandler.Create)
	v1.GET("/events", eventHandler.List)
	v1.GET("/events/search", eventHandler.Search)
	v1.GET("/events/:id", eventHandler.GetByID)
	v1.PUT("/events/:id", eventHandler.Update)
	v1.GET("/events/:id/availability", availabilityHandler.Get)

	v1.POST("/bookings", bookingHandler.Create, middleware.RateLimit(cfg.BookingRPS, cfg.BookingBurst))
	v1.GET("/bookings", bookingHandler.List)
	v1.GET("/bookings/:id", bookingHandler.GetByID)

	return e
}
