package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tunachat/chat-api/internal/api/metrics"
	"github.com/tunachat/chat-api/internal/core/domain"
	"github.com/tunachat/chat-api/internal/core/ports"
)

// MessageHandler handles the /message routes.
type MessageHandler struct {
	service ports.MessageService
}

func NewMessageHandler(service ports.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// All handles GET /message/all.
//
// @Summary      List all messages
// @Tags         message
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Message
// @Failure      401  {object}  errorResponse
// @Router       /message/all [get]
func (h *MessageHandler) All(c echo.Context) error {
	msgs, err := h.service.ListAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, msgs)
}

// Get handles GET /message/:id and returns the message content.
//
// @Summary      Get message content
// @Tags         message
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Message id"
// @Success      200  {object}  domain.MessageContent
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /message/{id} [get]
func (h *MessageHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	content, err := h.service.GetContent(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, content)
}

// Conversation handles GET /message/:sendId/:receiveId.
//
// @Summary      Conversation between two accounts
// @Tags         message
// @Produce      json
// @Security     BearerAuth
// @Param        sendId     path      int  true  "First account id"
// @Param        receiveId  path      int  true  "Second account id"
// @Success      200        {array}   conversationEntryResponse
// @Failure      400        {object}  errorResponse
// @Router       /message/{sendId}/{receiveId} [get]
func (h *MessageHandler) Conversation(c echo.Context) error {
	a, err := pathID(c, "sendId")
	if err != nil {
		return err
	}
	b, err := pathID(c, "receiveId")
	if err != nil {
		return err
	}

	entries, err := h.service.Conversation(c.Request().Context(), a, b)
	if err != nil {
		return err
	}

	out := make([]conversationEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, conversationEntryResponse{
			ID:        e.ID,
			SendID:    e.SendID,
			ReceiveID: e.ReceiveID,
			SentTime:  e.SentTime.Format(sentTimeLayout),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// Send handles POST /message (form) and POST /message/send (JSON). The
// sender defaults to the caller and may not be anyone else.
//
// @Summary      Send a message
// @Tags         message
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Security     BearerAuth
// @Param        body  body  sendMessageRequest  true  "Message"
// @Success      204
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /message/send [post]
func (h *MessageHandler) Send(c echo.Context) error {
	identity, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	callerID, err := strconv.ParseInt(identity.ID, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	if req.SendID == 0 {
		req.SendID = callerID
	}
	if req.SendID != callerID {
		return domain.ErrForbidden
	}

	in := ports.SendMessageInput{
		SendID:      req.SendID,
		ReceiveID:   req.ReceiveID,
		ContentType: req.ContentType,
		Content:     req.Content,
	}
	if _, err := h.service.Send(c.Request().Context(), in); err != nil {
		return err
	}

	metrics.MessagesSentTotal.WithLabelValues(contentTypeLabel(in.ContentType)).Inc()
	return c.NoContent(http.StatusNoContent)
}

// Delete handles DELETE /message/:id. The content is removed with it.
//
// @Summary      Delete a message
// @Tags         message
// @Security     BearerAuth
// @Param        id   path  int  true  "Message id"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /message/{id} [delete]
func (h *MessageHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	metrics.MessagesDeletedTotal.Inc()
	return c.NoContent(http.StatusNoContent)
}

// contentTypeLabel keeps the metric label set bounded.
func contentTypeLabel(contentType string) string {
	if contentType == "" || contentType == domain.ContentTypeText {
		return domain.ContentTypeText
	}
	return "other"
}
