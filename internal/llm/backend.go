// Package llm is the model gateway: prompt rendering, backend selection and
// the transports for the supported text-generation providers.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendLlama  Backend = "llama"
)

var ErrUnknownBackend = errors.New("unknown llm backend")

// ParseBackend maps a request's llm_type to a Backend.
func ParseBackend(key string) (Backend, error) {
	switch Backend(strings.TrimSpace(key)) {
	case BackendOpenAI:
		return BackendOpenAI, nil
	case BackendLlama:
		return BackendLlama, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, key)
	}
}

func (b Backend) String() string {
	return string(b)
}

// Gateways is the registry of configured backends, built once at startup.
type Gateways map[Backend]*Gateway

// Get resolves a request's llm_type. A known backend that was not configured
// is reported as unknown too.
func (g Gateways) Get(key string) (*Gateway, error) {
	backend, err := ParseBackend(key)
	if err != nil {
		return nil, err
	}

	gw, ok := g[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", ErrUnknownBackend, key)
	}
	return gw, nil
}
