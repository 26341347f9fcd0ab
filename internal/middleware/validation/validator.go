package validation

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	// MaxQuestionLength caps the question in characters. Zero or less leaves
	// questions unchecked.
	MaxQuestionLength int
	// Paths are the POST endpoints whose JSON body carries a question.
	Paths  []string
	Logger *zap.Logger
}

// Middleware requires JSON bodies on the answering endpoints and, when a
// maximum is configured, rejects longer questions. Missing or malformed fields
// are left to the handler.
func Middleware(cfg Config) fiber.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	guarded := make(map[string]struct{}, len(cfg.Paths))
	for _, p := range cfg.Paths {
		guarded[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}
		if _, ok := guarded[c.Path()]; !ok {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if !strings.HasPrefix(strings.ToLower(contentType), fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"detail": "Content-Type must be application/json",
			})
		}

		if cfg.MaxQuestionLength <= 0 {
			return c.Next()
		}

		var body struct {
			Question *string `json:"question"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil || body.Question == nil {
			return c.Next()
		}

		if n := utf8.RuneCountInString(*body.Question); n > cfg.MaxQuestionLength {
			cfg.Logger.Warn("Question exceeds maximum length",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Int("length", n),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"detail": "Question exceeds maximum length",
			})
		}

		return c.Next()
	}
}
