package handlers

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/query"
	"github.com/insight-router/backend/internal/storage/models"
	"github.com/insight-router/backend/pkg/logger"
)

const defaultBackend = "openai"

// Answerer is the query engine as seen by the HTTP layer.
type Answerer interface {
	ProcessQuery(ctx context.Context, req query.QueryRequest) (*query.QueryResponse, error)
	AnswerFromIDA(ctx context.Context, req query.IDARequest) (*query.QueryResponse, error)
	History(ctx context.Context, sessionID string, limit int) ([]models.QueryRecord, error)
}

type QueryHandler struct {
	engine Answerer
}

func NewQueryHandler(engine Answerer) *QueryHandler {
	return &QueryHandler{engine: engine}
}

type generalAnsweringRequest struct {
	// Question is nil only when the field is absent; "" is a valid question.
	Question         *string   `json:"question"`
	CollectionsNames *[]string `json:"collections_names"`
	LLMType          string    `json:"llm_type"`
	SessionID        string    `json:"session_id"`
}

func (r generalAnsweringRequest) toQuery() query.QueryRequest {
	collections := query.DefaultCollections
	if r.CollectionsNames != nil {
		collections = *r.CollectionsNames
	}
	backend := r.LLMType
	if backend == "" {
		backend = defaultBackend
	}
	return query.QueryRequest{
		Question:    *r.Question,
		Collections: collections,
		Backend:     backend,
		SessionID:   r.SessionID,
	}
}

type idaAnsweringRequest struct {
	Question    *string `json:"question"`
	IDAFileName *string `json:"ida_file_name"`
	LLMType     string  `json:"llm_type"`
	SessionID   string  `json:"session_id"`
}

func (h *QueryHandler) HandleGeneralAnswering(c *fiber.Ctx) error {
	logger.Info("general_answering request received")

	var req generalAnsweringRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Warn("Failed to parse request body", zap.Error(err))
		return unprocessable(c, "Invalid request body")
	}
	if req.Question == nil {
		return unprocessable(c, "question is required")
	}

	resp, err := h.engine.ProcessQuery(c.UserContext(), req.toQuery())
	if err != nil {
		return internalError(c, err)
	}

	if resp.ImagePath != "" {
		return sendImage(c, resp.ImagePath)
	}

	return c.JSON(fiber.Map{"answer": resp.Answer})
}

func (h *QueryHandler) HandleIDAAnswering(c *fiber.Ctx) error {
	logger.Info("ida_answering request received")

	var req idaAnsweringRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Warn("Failed to parse request body", zap.Error(err))
		return unprocessable(c, "Invalid request body")
	}
	if req.Question == nil || req.IDAFileName == nil {
		return unprocessable(c, "question and ida_file_name are required")
	}
	if req.LLMType == "" {
		req.LLMType = defaultBackend
	}

	resp, err := h.engine.AnswerFromIDA(c.UserContext(), query.IDARequest{
		Question:  *req.Question,
		FileName:  *req.IDAFileName,
		Backend:   req.LLMType,
		SessionID: req.SessionID,
	})
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"answer": resp.Answer})
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": "session_id is required",
		})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"detail": "limit must be a non-negative integer",
			})
		}
		limit = n
	}

	records, err := h.engine.History(c.UserContext(), sessionID, limit)
	if err != nil {
		return internalError(c, err)
	}
	if records == nil {
		records = []models.QueryRecord{}
	}

	return c.JSON(fiber.Map{"history": records})
}

// sendImage streams a generated chart and removes it; each chart path is
// unique to its request.
func sendImage(c *fiber.Ctx, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return internalError(c, err)
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("Failed to remove generated plot", zap.String("path", path), zap.Error(err))
	}

	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(data)
}

func unprocessable(c *fiber.Ctx, detail string) error {
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": detail})
}

func internalError(c *fiber.Ctx, err error) error {
	var plotErr *query.PlotError
	if errors.As(err, &plotErr) {
		logger.Error("Plot generation failed", zap.String("status", plotErr.Status), zap.Int("attempts", plotErr.Attempts))
	} else {
		logger.Error("An error occurred while generating answer", zap.Error(err))
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"detail": err.Error(),
	})
}
