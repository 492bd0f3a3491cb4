package handler

import (
	"log/slog"
	"net/http"

	"storefront/config"
	"storefront/internal/delivery/http/response"
	"storefront/internal/domain/repository"
	"storefront/internal/domain/service"
	"storefront/internal/errors"

	"github.com/labstack/echo/v4"
)

// HealthCheck is the liveness endpoint.
func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// SystemHandler exposes connection state, alert state and settings.
type SystemHandler struct {
	principalID string
	push        service.PushChannel
	alerter     service.Alerter
	cache       repository.CacheRepository
	logger      *slog.Logger
}

// NewSystemHandler is the constructor for SystemHandler.
func NewSystemHandler(
	cfg *config.Config,
	push service.PushChannel,
	alerter service.Alerter,
	cache repository.CacheRepository,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		principalID: cfg.Principal.ID,
		push:        push,
		alerter:     alerter,
		cache:       cache,
		logger:      logger,
	}
}

// Connection returns the push channel state machine snapshot.
func (h *SystemHandler) Connection(c echo.Context) error {
	return response.Success(c, http.StatusOK, h.push.State(), "")
}

// Alerts returns the current alert side-effect state.
func (h *SystemHandler) Alerts(c echo.Context) error {
	return response.Success(c, http.StatusOK, h.alerter.State(), "")
}

// AudioSettingRequest represents the body toggling the sound preference.
type AudioSettingRequest struct {
	Enabled bool `json:"enabled"`
}

// GetAudioSetting returns the persisted sound preference. An unset
// preference reads as enabled.
func (h *SystemHandler) GetAudioSetting(c echo.Context) error {
	enabled, err := h.cache.LoadAudioEnabled(h.principalID)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			return response.InternalServerError(c, "SETTINGS_READ_FAILED", "Could not read settings")
		}
		enabled = true
	}

	return response.Success(c, http.StatusOK, AudioSettingRequest{Enabled: enabled}, "")
}

// SetAudioSetting persists the sound preference.
func (h *SystemHandler) SetAudioSetting(c echo.Context) error {
	var req AudioSettingRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid settings input")
	}

	if err := h.cache.SaveAudioEnabled(h.principalID, req.Enabled); err != nil {
		return response.InternalServerError(c, "SETTINGS_WRITE_FAILED", "Could not persist settings")
	}

	return response.Success(c, http.StatusOK, req, "")
}
