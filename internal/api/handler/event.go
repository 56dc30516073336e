package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/event"
)

type EventHandler struct {
	eventService EventServiceInterface
}

func NewEventHandler(eventService EventServiceInterface) *EventHandler {
	return &EventHandler{eventService: eventService}
}

type CreateEventRequest struct {
	Name        string `json:"name" validate:"required,max=200" example:"東京ドームコンサート2026"`
	Description string `json:"description" example:"年末スペシャルコンサート"`
	Venue       string `json:"venue" example:"東京ドーム"`
	StartAt     string `json:"start_at" validate:"required" example:"2026-12-31T18:00:00+09:00"`
	EndAt       string `json:"end_at" validate:"required" example:"2026-12-31T21:00:00+09:00"`
	Capacity    int    `json:"capacity" validate:"gte=0" example:"50000"`
}

// UpdateEventRequest は定員を含まない（定員は作成後に変更できない）
type UpdateEventRequest struct {
	Name        string `json:"name" validate:"required,max=200" example:"東京ドームコンサート2026"`
	Description string `json:"description" example:"年末スペシャルコンサート"`
	Venue       string `json:"venue" example:"東京ドーム"`
	StartAt     string `json:"start_at" validate:"required" example:"2026-12-31T18:00:00+09:00"`
	EndAt       string `json:"end_at" validate:"required" example:"2026-12-31T21:00:00+09:00"`
	Version     *int   `json:"version,omitempty" example:"1"`
}

type EventResponse struct {
	ID          string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name        string `json:"name" example:"東京ドームコンサート2026"`
	Description string `json:"description" example:"年末スペシャルコンサート"`
	Venue       string `json:"venue" example:"東京ドーム"`
	StartAt     string `json:"start_at" example:"2026-12-31T18:00:00+09:00"`
	EndAt       string `json:"end_at" example:"2026-12-31T21:00:00+09:00"`
	Capacity    int    `json:"capacity" example:"50000"`
	Version     int    `json:"version" example:"0"`
	CreatedAt   string `json:"created_at" example:"2026-10-06T10:00:00+09:00"`
	UpdatedAt   string `json:"updated_at" example:"2026-10-06T10:00:00+09:00"`
}

func toEventResponse(e *event.Event) *EventResponse {
	return &EventResponse{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Venue:       e.Venue,
		StartAt:     e.StartAt.Format(time.RFC3339),
		EndAt:       e.EndAt.Format(time.RFC3339),
		Capacity:    e.Capacity,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}

func toEventResponses(events []*event.Event) []*EventResponse {
	responses := make([]*EventResponse, len(events))
	for i, e := range events {
		responses[i] = toEventResponse(e)
	}
	return responses
}

func parseSchedule(startAt, endAt string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startAt)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "開始時刻の形式が不正です")
	}
	end, err := time.Parse(time.RFC3339, endAt)
	if err != nil {
		return time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "終了時刻の形式が不正です")
	}
	return start, end, nil
}

func pageParams(c echo.Context) (int, int) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	return limit, offset
}

// isEventValidationError はドメインの入力検証エラーかどうかを返す
func isEventValidationError(err error) bool {
	return errors.Is(err, event.ErrEventNameRequired) ||
		errors.Is(err, event.ErrInvalidCapacity) ||
		errors.Is(err, event.ErrInvalidEventTime)
}

// Create godoc
// @Summary イベントを作成
// @Description 新しいイベントと座席台帳を作成します
// @Tags events
// @Accept json
// @Produce json
// @Param request body CreateEventRequest true "イベント情報"
// @Success 201 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /events [post]
func (h *EventHandler) Create(c echo.Context) error {
	var req CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	startAt, endAt, err := parseSchedule(req.StartAt, req.EndAt)
	if err != nil {
		return err
	}

	e, err := h.eventService.CreateEvent(c.Request().Context(), application.CreateEventInput{
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Capacity:    req.Capacity,
	})
	if err != nil {
		if isEventValidationError(err) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, toEventResponse(e))
}

// GetByID godoc
// @Summary イベントを取得
// @Description 指定IDのイベントを取得します
// @Tags events
// @Produce json
// @Param id path string true "イベントID"
// @Success 200 {object} EventResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{id} [get]
func (h *EventHandler) GetByID(c echo.Context) error {
	e, err := h.eventService.GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "イベントが見つかりません")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}

// List godoc
// @Summary イベント一覧を取得
// @Description イベントの一覧を開始日時の新しい順に取得します
// @Tags events
// @Produce json
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events [get]
func (h *EventHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	events, err := h.eventService.ListEvents(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toEventResponses(events))
}

// Search godoc
// @Summary イベントを検索
// @Description 名称・説明・会場の部分一致でイベントを検索します
// @Tags events
// @Produce json
// @Param q query string false "キーワード"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} EventResponse
// @Router /events/search [get]
func (h *EventHandler) Search(c echo.Context) error {
	limit, offset := pageParams(c)
	events, err := h.eventService.SearchEvents(c.Request().Context(), c.QueryParam("q"), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toEventResponses(events))
}

// Update godoc
// @Summary イベントを更新
// @Description 指定IDのイベントの名称・会場・日程を更新します
// @Tags events
// @Accept json
// @Produce json
// @Param id path string true "イベントID"
// @Param request body UpdateEventRequest true "イベント情報"
// @Success 200 {object} EventResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /events/{id} [put]
func (h *EventHandler) Update(c echo.Context) error {
	var req UpdateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストの形式が不正です")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	startAt, endAt, err := parseSchedule(req.StartAt, req.EndAt)
	if err != nil {
		return err
	}

	e, err := h.eventService.UpdateEvent(c.Request().Context(), application.UpdateEventInput{
		ID:          c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		StartAt:     startAt,
		EndAt:       endAt,
		Version:     req.Version,
	})
	if err != nil {
		switch {
		case errors.Is(err, event.ErrEventNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "イベントが見つかりません")
		case errors.Is(err, event.ErrOptimisticLockConflict):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case isEventValidationError(err):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toEventResponse(e))
}
