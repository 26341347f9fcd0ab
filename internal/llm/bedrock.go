package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/insight-router/backend/pkg/logger"
	"github.com/insight-router/backend/pkg/retry"
)

// BedrockAPI is the subset of the bedrockruntime client used here.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockInvoker calls a Llama model hosted on AWS Bedrock.
type BedrockInvoker struct {
	api     BedrockAPI
	modelID string
}

type bedrockLlamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len,omitempty"`
	Temperature float32 `json:"temperature"`
}

type bedrockLlamaResponse struct {
	Generation string `json:"generation"`
}

// NewBedrockInvoker resolves credentials from the default AWS chain.
func NewBedrockInvoker(ctx context.Context, region, modelID string) (*BedrockInvoker, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("Bedrock invoker initialized",
		zap.String("region", region),
		zap.String("model", modelID),
	)

	return NewBedrockInvokerWithClient(bedrockruntime.NewFromConfig(cfg), modelID), nil
}

func NewBedrockInvokerWithClient(api BedrockAPI, modelID string) *BedrockInvoker {
	return &BedrockInvoker{api: api, modelID: modelID}
}

func (b *BedrockInvoker) Invoke(ctx context.Context, req InvokeRequest) (string, error) {
	body, err := json.Marshal(bedrockLlamaRequest{
		Prompt:      req.Prompt,
		MaxGenLen:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to marshal bedrock request: %w", err))
	}

	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		err = fmt.Errorf("failed to invoke bedrock model: %w", err)
		if permanentBedrockError(err) {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var resp bedrockLlamaResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to decode bedrock response: %w", err))
	}

	return resp.Generation, nil
}

func permanentBedrockError(err error) bool {
	var validation *types.ValidationException
	var denied *types.AccessDeniedException
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &validation) || errors.As(err, &denied) || errors.As(err, &notFound)
}
