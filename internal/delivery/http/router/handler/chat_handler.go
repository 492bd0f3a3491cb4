package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"storefront/internal/delivery/http/response"
	"storefront/internal/domain/entity"
	domainerrors "storefront/internal/domain/errors"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ChatHandler exposes the chat session state.
type ChatHandler struct {
	uc     usecase.ChatUsecase
	logger *slog.Logger
}

// NewChatHandler is the constructor for ChatHandler.
func NewChatHandler(uc usecase.ChatUsecase, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		uc:     uc,
		logger: logger,
	}
}

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	Text    string           `json:"text"`
	ReplyTo *entity.ReplyRef `json:"reply_to,omitempty"`
}

// Conversations refreshes the thread listing from the server and returns
// the merged result. A failed refresh serves the held listing instead of
// an error page.
func (h *ChatHandler) Conversations(c echo.Context) error {
	summaries, err := h.uc.LoadConversations(c.Request().Context())
	if err != nil {
		h.logger.Warn("conversation listing refresh failed", slog.Any("error", err))
	}

	return response.Success(c, http.StatusOK, summaries, "")
}

// Conversation returns one thread.
func (h *ChatHandler) Conversation(c echo.Context) error {
	key := c.Param("key")
	conv, ok := h.uc.Conversation(key)
	if !ok {
		return domainerrors.ErrConversationNotFound
	}

	return response.Success(c, http.StatusOK, conv, "")
}

// LoadHistory fetches one history page into the thread.
func (h *ChatHandler) LoadHistory(c echo.Context) error {
	key := c.Param("key")

	page := 0
	if pageStr := c.QueryParam("page"); pageStr != "" {
		parsed, err := strconv.Atoi(pageStr)
		if err != nil || parsed < 0 {
			return response.BadRequest(c, "VALIDATION_ERROR", "page must be a non-negative integer")
		}
		page = parsed
	}

	size := 0
	if sizeStr := c.QueryParam("size"); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil || parsed <= 0 {
			return response.BadRequest(c, "VALIDATION_ERROR", "size must be a positive integer")
		}
		size = parsed
	}

	result, err := h.uc.LoadHistory(c.Request().Context(), key, page, size)
	if err != nil {
		h.logger.Warn("history load failed", slog.String("conversation", key), slog.Any("error", err))

		return domainerrors.ErrHistoryUnavailable
	}

	return response.Success(c, http.StatusOK, result, "")
}

// SendMessage validates and sends one message into the thread.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	key := c.Param("key")

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid message input")
	}

	accepted, err := h.uc.SendMessage(c.Request().Context(), key, req.Text, req.ReplyTo)
	if err != nil {
		if errors.Is(err, usecase.ErrSendFailed) {
			return domainerrors.ErrMessageUndeliverable
		}

		return errors.WithStack(err)
	}
	if !accepted {
		return response.Conflict(c, "SEND_REJECTED",
			"Message was empty, the channel is offline, or a send is already in flight")
	}

	conv, _ := h.uc.Conversation(key)

	return response.Success(c, http.StatusAccepted, conv, "Message accepted")
}

// MarkRead marks one message in the thread read.
func (h *ChatHandler) MarkRead(c echo.Context) error {
	h.uc.MarkRead(c.Request().Context(), c.Param("key"), c.Param("id"))

	return response.Success(c, http.StatusOK, nil, "")
}

// MarkAllRead marks the whole thread read and issues the receipts.
func (h *ChatHandler) MarkAllRead(c echo.Context) error {
	key := c.Param("key")
	confirmed := h.uc.MarkAllRead(c.Request().Context(), key)

	return response.Success(c, http.StatusOK, map[string]int{"confirmed": confirmed}, "")
}
