package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-seat-booking/internal/application"
	"github.com/sanosuguru/go-event-seat-booking/internal/domain/ledger"
)

// MockLedgerService はLedgerServiceInterfaceのモック
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) GetAvailability(ctx context.Context, eventID string) (*application.Availability, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.Availability), args.Error(1)
}

func TestAvailabilityHandler_Get(t *testing.T) {
	t.Run("空席状況を返す", func(t *testing.T) {
		e := NewTestEcho()
		mockService := new(MockLedgerService)
		mockService.On("GetAvailability", mock.Anything, "evt-1").Return(&application.Availability{
			EventID: "evt-1", Capacity: 100, Available: 58, Booked: 42, Version: 42,
		}, nil)
		e.GET("/api/v1/events/:id/availability", NewAvailabilityHandler(mockService).Get)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/evt-1/availability", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp AvailabilityResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, AvailabilityResponse{EventID: "evt-1", Capacity: 100, Available: 58, Booked: 42, Version: 42}, resp)
	})

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"イベントなし", ledger.ErrLedgerNotFound, http.StatusNotFound},
		{"ストレージ障害", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewTestEcho()
			mockService := new(MockLedgerService)
			mockService.On("GetAvailability", mock.Anything, "evt-1").Return(nil, tt.err)
			e.GET("/api/v1/events/:id/availability", NewAvailabilityHandler(mockService).Get)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/evt-1/availability", nil))
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}
