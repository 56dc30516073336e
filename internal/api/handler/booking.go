package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-event-seat-booking/internal/api"
	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/booking"
)

// HeaderUserID は上流のゲートウェイが設定する利用者ID
const HeaderUserID = "X-User-ID"

// 予約結果ごとのエラーコード
const (
	CodeEventNotFound = "EVENT_NOT_FOUND"
	CodeSoldOut       = "SOLD_OUT"
	CodeAlreadyBooked = "ALREADY_BOOKED"
	CodeConflictRetry = "CONFLICT_RETRY"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type CreateBookingRequest struct {
	EventID string `json:"event_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
}

type BookingResponse struct {
	ID            string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID        string    `json:"user_id" example:"user-123"`
	EventID       string    `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	LedgerVersion int64     `json:"ledger_version" example:"42"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateBookingResponse は予約確定時のレスポンス
type CreateBookingResponse struct {
	BookingResponse
	Attempts int `json:"attempts" example:"1"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		UserID:        b.UserID,
		EventID:       b.EventID,
		LedgerVersion: b.LedgerVersion,
		CreatedAt:     b.CreatedAt,
	}
}

func userIDFrom(c echo.Context) (string, error) {
	userID := c.Request().Header.Get(HeaderUserID)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	return userID, nil
}

// Create godoc
// @Summary 座席を予約
// @Description イベントの座席を1席予約します（同じユーザーは1イベント1席まで）
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} CreateBookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse "EVENT_NOT_FOUND"
// @Failure 409 {object} api.ErrorResponse "SOLD_OUT / ALREADY_BOOKED / CONFLICT_RETRY"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return err
	}
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.Book(c.Request().Context(), application.BookInput{UserID: userID, EventID: req.EventID})
	if err != nil {
		if errors.Is(err, booking.ErrUserIDRequired) || errors.Is(err, booking.ErrEventIDRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "予約処理に失敗しました")
	}

	switch res.Outcome {
	case booking.OutcomeBooked:
		return c.JSON(http.StatusCreated, CreateBookingResponse{
			BookingResponse: toBookingResponse(res.Booking),
			Attempts:        res.Attempts,
		})
	case booking.OutcomeNotFound:
		return outcomeError(c, http.StatusNotFound, CodeEventNotFound, "イベントが見つかりません", false)
	case booking.OutcomeSoldOut:
		return outcomeError(c, http.StatusConflict, CodeSoldOut, "満席です", false)
	case booking.OutcomeAlreadyBooked:
		return outcomeError(c, http.StatusConflict, CodeAlreadyBooked, "このイベントは既に予約済みです", false)
	case booking.OutcomeConflictExhausted:
		c.Response().Header().Set("Retry-After", "1")
		return outcomeError(c, http.StatusConflict, CodeConflictRetry, "混雑のため予約を確定できませんでした。再試行してください", true)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "予約処理に失敗しました")
	}
}

func outcomeError(c echo.Context, status int, code, message string, retryable bool) error {
	return c.JSON(status, api.ErrorResponse{
		Error:     message,
		Code:      status,
		ErrorCode: code,
		Retryable: retryable,
	})
}

// GetByID godoc
// @Summary 予約を取得
// @Description 指定IDの予約を取得します（本人の予約のみ）
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return err
	}
	b, err := h.service.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// 他人の予約は存在を明かさない
	if b.UserID != userID {
		return echo.NewHTTPError(http.StatusNotFound, booking.ErrBookingNotFound.Error())
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// List godoc
// @Summary 自分の予約一覧を取得
// @Description ユーザーの予約一覧を新しい順に取得します
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /bookings [get]
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := userIDFrom(c)
	if err != nil {
		return err
	}
	limit, offset := pageParams(c)
	bookings, err := h.service.ListUserBookings(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}
