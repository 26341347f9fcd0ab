package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(maxLen int) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxQuestionLength: maxLen, Paths: []string{"/general_answering"}}))
	app.Post("/general_answering", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Post("/other", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func post(t *testing.T, app *fiber.App, path, contentType, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestMiddleware_WithLimit(t *testing.T) {
	app := newApp(10)

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"short question", "/general_answering", "application/json", `{"question":"hi"}`, fiber.StatusOK},
		{"charset suffix", "/general_answering", "application/json; charset=utf-8", `{"question":"hi"}`, fiber.StatusOK},
		{"too long", "/general_answering", "application/json", `{"question":"this is far too long"}`, fiber.StatusRequestEntityTooLarge},
		{"multibyte within limit", "/general_answering", "application/json", `{"question":"ééééééééé"}`, fiber.StatusOK},
		{"empty question", "/general_answering", "application/json", `{"question":""}`, fiber.StatusOK},
		{"nul byte", "/general_answering", "application/json", `{"question":"a\u0000b"}`, fiber.StatusOK},
		{"wrong content type", "/general_answering", "text/plain", `{"question":"hi"}`, fiber.StatusUnsupportedMediaType},
		{"malformed passes through", "/general_answering", "application/json", `{`, fiber.StatusOK},
		{"unguarded path", "/other", "text/plain", "anything", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, post(t, app, tt.path, tt.contentType, tt.body))
		})
	}
}

func TestMiddleware_NoLimitByDefault(t *testing.T) {
	long := `{"question":"` + strings.Repeat("q", 6000) + `"}`

	for _, maxLen := range []int{0, -1} {
		app := newApp(maxLen)
		assert.Equal(t, fiber.StatusOK, post(t, app, "/general_answering", "application/json", long), maxLen)
		assert.Equal(t, fiber.StatusOK, post(t, app, "/general_answering", "application/json", `{"question":"hi"}`), maxLen)
	}
}
