package inspect

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/im"
	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// DecodeRequest carries a hex-encoded SNAC frame.
type DecodeRequest struct {
	Frame string `json:"frame" binding:"required"`
}

// EncodeResponse is the result of POST /api/v1/messages/encode.
type EncodeResponse struct {
	Frame     string `json:"frame"`
	RequestID uint32 `json:"request_id"`
	Cookie    string `json:"cookie"`
}

// FrameResponse carries a frame built by the server.
type FrameResponse struct {
	Frame     string `json:"frame"`
	RequestID uint32 `json:"request_id"`
}

// OfflineResponse is the result of POST /api/v1/offline/reply.
type OfflineResponse struct {
	Messages []MessageView `json:"messages"`
	Skipped  int           `json:"skipped"`
	Complete bool          `json:"complete"`
	Ack      string        `json:"ack,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// HealthResponse is the result of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Negotiating int    `json:"negotiating"`
}

// ParseHex decodes a frame written as hex, ignoring whitespace.
func ParseHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

// handleDecode handles POST /api/v1/frames/decode
func (s *Server) handleDecode(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	frame, err := ParseHex(req.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid frame", Message: err.Error()})
		return
	}

	msg, err := s.dispatcher.Decode(c.Request.Context(), frame)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Frame dropped",
			Message: err.Error(),
			Code:    im.DropReason(err),
		})
		return
	}

	c.JSON(http.StatusOK, NewMessageView(msg))
}

// handleEncode handles POST /api/v1/messages/encode
func (s *Server) handleEncode(c *gin.Context) {
	var req EncodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	msg, err := req.Message()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid message", Message: err.Error()})
		return
	}

	frame, err := s.encoder.Encode(msg)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "Encode failed", Message: err.Error()})
		return
	}

	h, body, err := wire.SplitFrame(frame)
	if err != nil {
		s.log.Error("encoder produced a short frame", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Encode failed"})
		return
	}
	var cookie im.Cookie
	copy(cookie[:], body)

	c.JSON(http.StatusOK, EncodeResponse{
		Frame:     hex.EncodeToString(frame),
		RequestID: h.RequestID,
		Cookie:    cookie.String(),
	})
}

// handleOfflineRequest handles POST /api/v1/offline/request
func (s *Server) handleOfflineRequest(c *gin.Context) {
	frame := s.offline.Request()
	h, _, _ := wire.SplitFrame(frame)
	c.JSON(http.StatusOK, FrameResponse{
		Frame:     hex.EncodeToString(frame),
		RequestID: h.RequestID,
	})
}

// handleOfflineReply handles POST /api/v1/offline/reply
func (s *Server) handleOfflineReply(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	frame, err := ParseHex(req.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid frame", Message: err.Error()})
		return
	}

	result, err := s.offline.HandleReply(c.Request.Context(), frame)
	switch {
	case errors.Is(err, im.ErrUnexpectedReply):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "No matching request", Message: err.Error()})
		return
	case err != nil && result == nil:
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Reply dropped",
			Message: err.Error(),
			Code:    im.DropReason(err),
		})
		return
	}

	resp := OfflineResponse{
		Messages: make([]MessageView, 0, len(result.Messages)),
		Skipped:  result.Skipped,
		Complete: err == nil,
	}
	for _, msg := range result.Messages {
		resp.Messages = append(resp.Messages, NewMessageView(msg))
	}
	if result.Ack != nil {
		resp.Ack = hex.EncodeToString(result.Ack)
	}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// handleNegotiations handles GET /api/v1/rendezvous
func (s *Server) handleNegotiations(c *gin.Context) {
	open := s.tracker.Open()
	views := make([]NegotiationView, 0, len(open))
	for _, n := range open {
		views = append(views, NewNegotiationView(n))
	}
	c.JSON(http.StatusOK, views)
}

// handleNegotiation handles GET /api/v1/rendezvous/:cookie
func (s *Server) handleNegotiation(c *gin.Context) {
	var cookie im.Cookie
	if err := cookie.UnmarshalText([]byte(c.Param("cookie"))); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid cookie", Message: err.Error()})
		return
	}

	n, ok := s.tracker.Lookup(cookie)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Negotiation not found"})
		return
	}
	c.JSON(http.StatusOK, NewNegotiationView(n))
}

// handleContacts handles GET /api/v1/roster
func (s *Server) handleContacts(c *gin.Context) {
	contacts, err := s.roster.All(c.Request.Context())
	if err != nil {
		s.log.Error("list roster", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Roster unavailable"})
		return
	}

	views := make([]ContactView, 0, len(contacts))
	for _, ct := range contacts {
		views = append(views, NewContactView(ct))
	}
	c.JSON(http.StatusOK, views)
}

// handlePutContact handles PUT /api/v1/roster
func (s *Server) handlePutContact(c *gin.Context) {
	var view ContactView
	if err := c.ShouldBindJSON(&view); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	contact, err := view.Contact()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid contact", Message: err.Error()})
		return
	}

	if err := s.roster.Save(c.Request.Context(), contact); err != nil {
		s.log.Error("save contact", zap.String("name", contact.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Roster unavailable"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// handleDeleteContact handles DELETE /api/v1/roster/:groupID/:itemID
func (s *Server) handleDeleteContact(c *gin.Context) {
	groupID, err := strconv.ParseUint(c.Param("groupID"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid group ID", Message: err.Error()})
		return
	}
	itemID, err := strconv.ParseUint(c.Param("itemID"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid item ID", Message: err.Error()})
		return
	}

	err = s.roster.Delete(c.Request.Context(), uint16(groupID), uint16(itemID))
	switch {
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Contact not found"})
	case err != nil:
		s.log.Error("delete contact", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Roster unavailable"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.tracker != nil {
		resp.Negotiating = len(s.tracker.Open())
	}
	c.JSON(http.StatusOK, resp)
}
