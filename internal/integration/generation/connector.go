package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/wizard-backend/internal/config"
	"github.com/futig/wizard-backend/internal/entity"
	"github.com/futig/wizard-backend/internal/integration/common"
	pkghttp "github.com/futig/wizard-backend/pkg/http"
)

type Connector struct {
	config    config.GenerationConnectorConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(
	cfg config.GenerationConnectorConfig,
	logger *zap.Logger,
) *Connector {
	return &Connector{
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		config:    cfg,
		logger:    logger,
	}
}

// GenerateStep renders the result blocks of one generate step from the
// answers collected so far.
func (c *Connector) GenerateStep(ctx context.Context, req *entity.GenerateStepRequest) (
	*entity.GenerateStepResponse, error,
) {
	ctxzap.Info(ctx, "generating step result via generation service",
		zap.String("wizard", req.Wizard),
		zap.String("step_key", req.StepKey),
	)

	// Retry.Timeout caps the whole call, attempts included.
	if c.config.Retry.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Retry.Timeout)
		defer cancel()
	}

	// Retries are bounded and only cover transport failures. A 4xx/5xx body
	// reached the service, so re-sending it would double-charge generation.
	opts := append(
		c.config.Retry.ToRetryOptions(),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var netErr *pkghttp.NetworkError
			return errors.As(err, &netErr)
		}),
	)

	var resp entity.GenerateStepResponse
	err := retry.Do(func() error {
		return c.connector.DoRequest(ctx, http.MethodPost, c.config.GenerateEndpoint, req, &resp)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate step failed: %w", err)
	}

	if len(resp.Blocks) == 0 {
		return nil, fmt.Errorf("invalid generation response: no blocks")
	}

	ctxzap.Info(ctx, "step result generated", zap.Int("block_count", len(resp.Blocks)))

	return &resp, nil
}
