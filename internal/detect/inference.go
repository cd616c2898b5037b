package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/skillcert/proctor-engine/internal/models"
)

const defaultInferenceTimeout = 10 * time.Second

// InferenceClient implements FaceDetector and ObjectDetector against an
// external model-serving endpoint. The engine runs no models itself;
// frames are posted raw and detections come back as JSON.
type InferenceClient struct {
	baseURL string
	client  *http.Client
}

func NewInferenceClient(baseURL string) *InferenceClient {
	return &InferenceClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultInferenceTimeout},
	}
}

func (c *InferenceClient) DetectFaces(ctx context.Context, frame Frame) ([]models.FaceDetection, error) {
	var out struct {
		Faces []models.FaceDetection `json:"faces"`
	}
	if err := c.post(ctx, "/v1/detect/faces", frame, &out); err != nil {
		return nil, err
	}
	return out.Faces, nil
}

func (c *InferenceClient) DetectObjects(ctx context.Context, frame Frame) ([]models.ObjectDetection, error) {
	var out struct {
		Objects []models.ObjectDetection `json:"objects"`
	}
	if err := c.post(ctx, "/v1/detect/objects", frame, &out); err != nil {
		return nil, err
	}
	return out.Objects, nil
}

func (c *InferenceClient) post(ctx context.Context, path string, frame Frame, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(frame.Image))
	if err != nil {
		return fmt.Errorf("failed to build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Frame-Width", strconv.Itoa(frame.Width))
	req.Header.Set("X-Frame-Height", strconv.Itoa(frame.Height))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference returned status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode inference response: %w", err)
	}
	return nil
}
