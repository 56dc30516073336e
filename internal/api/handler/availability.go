package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
)

type AvailabilityHandler struct {
	service LedgerServiceInterface
}

func NewAvailabilityHandler(s LedgerServiceInterface) *AvailabilityHandler {
	return &AvailabilityHandler{service: s}
}

type AvailabilityResponse struct {
	EventID   string `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Capacity  int    `json:"capacity" example:"100"`
	Available int    `json:"available" example:"58"`
	Booked    int    `json:"booked" example:"42"`
	Version   int64  `json:"version" example:"42"`
	SoldOut   bool   `json:"sold_out" example:"false"`
}

func toAvailabilityResponse(a *application.Availability) AvailabilityResponse {
	return AvailabilityResponse{
		EventID:   a.EventID,
		Capacity:  a.Capacity,
		Available: a.Available,
		Booked:    a.Booked,
		Version:   a.Version,
		SoldOut:   a.SoldOut,
	}
}

// Get godoc
// @Summary 空席状況を取得
// @Description イベントの空席数を取得します（表示用の値で、予約の可否は予約時に判定されます）
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} AvailabilityResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id}/availability [get]
func (h *AvailabilityHandler) Get(c echo.Context) error {
	a, err := h.service.GetAvailability(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "イベントが見つかりません")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toAvailabilityResponse(a))
}
