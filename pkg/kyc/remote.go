package kyc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RemoteFaceClient calls the optional face-detection microservice. The
// service is unreliable by assumption: calls carry a bounded timeout and run
// behind a circuit breaker so a dead endpoint degrades to local detection
// instead of stalling every submission.
type RemoteFaceClient struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[FaceResult]
}

type remoteDetectResponse struct {
	FaceCount  int       `json:"face_count"`
	Confidence float64   `json:"confidence"`
	Descriptor []float32 `json:"descriptor"`
}

// NewRemoteFaceClient returns nil when url is empty (remote disabled).
func NewRemoteFaceClient(url string, timeout time.Duration) *RemoteFaceClient {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteFaceClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[FaceResult](gobreaker.Settings{
			Name:    "remote-face",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Detect posts the image to the remote service. Any transport or breaker
// error is returned as-is; the caller falls back to the local detector.
func (c *RemoteFaceClient) Detect(ctx context.Context, data []byte, expectFaces int) (FaceResult, error) {
	return c.breaker.Execute(func() (FaceResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/detect", bytes.NewReader(data))
		if err != nil {
			return FaceResult{}, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := c.client.Do(req)
		if err != nil {
			return FaceResult{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return FaceResult{}, fmt.Errorf("remote face api status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return FaceResult{}, err
		}
		var out remoteDetectResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return FaceResult{}, fmt.Errorf("remote face api decode: %w", err)
		}
		res := FaceResult{
			FaceCount:      out.FaceCount,
			FaceConfidence: out.Confidence,
			Descriptor:     out.Descriptor,
		}
		switch {
		case expectFaces == 1 && out.FaceCount == 0:
			res.Reason = ReasonNoFaceDetected
		case expectFaces == 1 && out.FaceCount > 1:
			res.Reason = ReasonMultipleFaces
		}
		return res, nil
	})
}
