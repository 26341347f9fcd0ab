package handlers

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/query"
	"github.com/insight-router/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine Answerer
}

func NewWebSocketHandler(engine Answerer) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

type wsQueryMessage struct {
	Type             string    `json:"type"`
	Question         *string   `json:"question"`
	CollectionsNames *[]string `json:"collections_names"`
	LLMType          string    `json:"llm_type"`
	SessionID        string    `json:"session_id"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsQueryMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "query" {
			continue
		}
		if msg.Question == nil {
			h.sendError(c, "question is required")
			continue
		}

		logger.Info("Processing WebSocket query", zap.String("question", logger.Truncate(*msg.Question, 200)))

		req := generalAnsweringRequest{
			Question:         msg.Question,
			CollectionsNames: msg.CollectionsNames,
			LLMType:          msg.LLMType,
			SessionID:        msg.SessionID,
		}
		if err := h.streamResponse(c, req.toQuery()); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, err.Error())
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req query.QueryRequest) error {
	if err := h.send(c, "status", "Processing query..."); err != nil {
		return err
	}

	response, err := h.engine.ProcessQuery(context.Background(), req)
	if err != nil {
		return err
	}

	if response.ImagePath != "" {
		data, err := os.ReadFile(response.ImagePath)
		if err != nil {
			return err
		}
		os.Remove(response.ImagePath)

		return c.WriteJSON(map[string]interface{}{
			"type":       "image",
			"message_id": response.ID,
			"mime_type":  "image/png",
			"content":    base64.StdEncoding.EncodeToString(data),
		})
	}

	for _, chunk := range splitIntoSentences(response.Answer) {
		if err := h.send(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"message_id": response.ID,
		"intent":     response.Intent.String(),
		"latency_ms": response.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

// splitIntoSentences chunks an answer for streaming. Every chunk but the last
// keeps a trailing space so the client can concatenate them as received.
func splitIntoSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return []string{text}
	}

	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return []string{text}
	}

	chunks := make([]string, 0, len(sentences))
	for i, s := range sentences {
		chunk := s.Text
		if i < len(sentences)-1 {
			chunk += " "
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
