package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skillcert/proctor-engine/internal/models"
)

// HTTPBackend implements Backend against the certification REST API.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) StartAttempt(ctx context.Context, certificationID uint) (*models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	url := fmt.Sprintf("%s/api/v1/certifications/%d/attempts", b.baseURL, certificationID)
	if err := b.do(ctx, http.MethodPost, url, nil, &attempt); err != nil {
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}
	return &attempt, nil
}

func (b *HTTPBackend) GetQuestions(ctx context.Context, certificationID uint) ([]models.Question, error) {
	var questions []models.Question
	url := fmt.Sprintf("%s/api/v1/certifications/%d/questions", b.baseURL, certificationID)
	if err := b.do(ctx, http.MethodGet, url, nil, &questions); err != nil {
		return nil, fmt.Errorf("failed to fetch questions: %w", err)
	}
	return questions, nil
}

func (b *HTTPBackend) GetCertification(ctx context.Context, certificationID uint) (*models.Certification, error) {
	var cert models.Certification
	url := fmt.Sprintf("%s/api/v1/certifications/%d", b.baseURL, certificationID)
	if err := b.do(ctx, http.MethodGet, url, nil, &cert); err != nil {
		return nil, fmt.Errorf("failed to fetch certification: %w", err)
	}
	return &cert, nil
}

func (b *HTTPBackend) SubmitAttempt(ctx context.Context, req SubmitRequest) (*models.GradedResult, error) {
	var result models.GradedResult
	url := fmt.Sprintf("%s/api/v1/attempts/%d/submit", b.baseURL, req.AttemptID)
	if err := b.do(ctx, http.MethodPost, url, req, &result); err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}
	return &result, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, url string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(data))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
