package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"residualbind/internal/tensor"
)

// RemotePredictor calls a TensorFlow Serving compatible REST endpoint:
//
//	POST <base>/v1/models/<model>:predict  {"instances": [...]}
type RemotePredictor struct {
	base  string
	model string
	rest  *resty.Client
}

type predictRequest struct {
	Instances [][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float32 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// NewRemotePredictor creates a client for the named model served at base.
func NewRemotePredictor(base, model string, timeout time.Duration) *RemotePredictor {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err == nil && resp.StatusCode() >= 500
		})
	return &RemotePredictor{base: strings.TrimRight(base, "/"), model: model, rest: r}
}

// Predict implements Predictor.
func (c *RemotePredictor) Predict(ctx context.Context, x *tensor.Tensor, batchSize int) ([][]float32, error) {
	return predictBatches(ctx, x, batchSize, c.predictBatch)
}

func (c *RemotePredictor) predictBatch(ctx context.Context, batch *tensor.Tensor) ([][]float32, error) {
	path := fmt.Sprintf("/v1/models/%s:predict", c.model)

	out := &predictResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(predictRequest{Instances: nested(batch)}).
		SetResult(out).
		SetError(out).
		Post(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		if out.Error != "" {
			return nil, fmt.Errorf("model server: status %d: %s", resp.StatusCode(), out.Error)
		}
		return nil, fmt.Errorf("model server: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return out.Predictions, nil
}
