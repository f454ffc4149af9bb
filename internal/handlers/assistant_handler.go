package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"leitura_app_echo/internal/services"
)

type AssistantHandler struct {
	assistant *services.AssistantService
}

func NewAssistantHandler(assistant *services.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

type assistantRequest struct {
	Message string `json:"message"`
}

// Ask forwards a reading question to the assistant, grounded on the book
// catalog.
func (h *AssistantHandler) Ask(c echo.Context) error {
	var req assistantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reply, err := h.assistant.Ask(c.Request().Context(), req.Message)
	if err != nil {
		c.Logger().Errorf("assistant request failed: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "assistant is unavailable")
	}
	return c.JSON(http.StatusOK, reply)
}
