package handler

import (
	"log/slog"
	"net/http"

	"storefront/internal/delivery/http/response"
	domainerrors "storefront/internal/domain/errors"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// NotificationHandler exposes the reconciled notification list.
type NotificationHandler struct {
	uc     usecase.NotificationUsecase
	logger *slog.Logger
}

// NewNotificationHandler is the constructor for NotificationHandler.
func NewNotificationHandler(uc usecase.NotificationUsecase, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		uc:     uc,
		logger: logger,
	}
}

// List returns the current notification list, newest first.
func (h *NotificationHandler) List(c echo.Context) error {
	return response.Success(c, http.StatusOK, h.uc.Notifications(), "")
}

// Counters returns the aggregate counts derived from the list.
func (h *NotificationHandler) Counters(c echo.Context) error {
	return response.Success(c, http.StatusOK, h.uc.Counters(), "")
}

// Refresh triggers an authoritative re-fetch.
func (h *NotificationHandler) Refresh(c echo.Context) error {
	if err := h.uc.LoadFromServer(c.Request().Context()); err != nil {
		h.logger.Warn("notification refresh failed", slog.Any("error", err))

		return domainerrors.ErrRefreshFailed
	}

	return response.Success(c, http.StatusOK, h.uc.Notifications(), "Notifications refreshed")
}

// MarkRead marks one notification read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return response.BadRequest(c, "VALIDATION_ERROR", "Notification id is required")
	}

	h.uc.MarkAsRead(c.Request().Context(), id)

	return response.Success(c, http.StatusOK, h.uc.Counters(), "")
}

// MarkAllRead marks every notification read.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	h.uc.MarkAllAsRead(c.Request().Context())

	return response.Success(c, http.StatusOK, h.uc.Counters(), "")
}

// Delete removes one notification.
func (h *NotificationHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return response.BadRequest(c, "VALIDATION_ERROR", "Notification id is required")
	}

	h.uc.Remove(c.Request().Context(), id)

	return response.Success(c, http.StatusOK, h.uc.Counters(), "")
}

// DeleteAll clears the whole list.
func (h *NotificationHandler) DeleteAll(c echo.Context) error {
	h.uc.ClearAll(c.Request().Context())

	return response.Success(c, http.StatusOK, h.uc.Counters(), "")
}
