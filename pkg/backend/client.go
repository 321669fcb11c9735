// Package backend is the client for the remote podcast generation service.
// It is stateless: every call reads the current credential from the
// resolver and classifies failures into the package error taxonomy.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"podcastle/pkg/auth"
	"podcastle/pkg/model"
	"podcastle/pkg/request"
)

// CredentialSource supplies the canonical bearer credential.
type CredentialSource interface {
	Current() auth.Credential
}

// Client talks to the generation backend.
type Client struct {
	http    *request.Client
	baseURL string
	creds   CredentialSource
}

// New creates a backend client. baseURL is the API root, e.g.
// "https://pods.example.com/api/v1".
func New(httpClient *request.Client, baseURL string, creds CredentialSource) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
	}
}

// Ping checks that the backend host is reachable. It hits the service
// health endpoint, which needs no credential.
func (c *Client) Ping(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid backend base url: %w", err)
	}
	if _, err := c.http.Get(ctx, u.Scheme+"://"+u.Host+"/health", ""); err != nil {
		return classify(err)
	}
	return nil
}

// statusResponse mirrors the backend's status endpoint body.
type statusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Progress     *int   `json:"progress"`
	Stage        string `json:"stage"`
	AudioURL     string `json:"audio_url"`
	ErrorMessage string `json:"error_message"`
}

// podcastResponse mirrors the backend's podcast resource body.
type podcastResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Topic        string    `json:"topic"`
	CategoryID   string    `json:"category_id"`
	Duration     int       `json:"duration"`
	SpeakerMode  string    `json:"speaker_mode"`
	Status       string    `json:"status"`
	AudioURL     string    `json:"audio_url"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Status fetches one job's current status. Pure query, no side effects.
func (c *Client) Status(ctx context.Context, id string) (*model.StatusReply, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: invalid job id %q", ErrNotFound, id)
	}

	body, err := c.http.GetWithHeaders(ctx, c.baseURL+"/podcasts/"+id+"/status", c.header(), "")
	if err != nil {
		return nil, classify(err)
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed status body: %v", ErrTransient, err)
	}

	reply := &model.StatusReply{
		ID:           resp.ID,
		State:        mapState(resp.Status),
		Stage:        resp.Stage,
		ResultURL:    resp.AudioURL,
		ErrorMessage: resp.ErrorMessage,
	}
	if resp.Progress != nil {
		reply.Progress = *resp.Progress
	}
	return reply, nil
}

// Create submits a generation request. The backend answers synchronously
// with the accepted job in its initial state.
func (c *Client) Create(ctx context.Context, req *model.CreateRequest) (*model.Job, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode create request: %w", err)
	}

	headers := c.header()
	headers["Content-Type"] = "application/json"

	body, err := c.http.Post(ctx, c.baseURL+"/podcasts/", payload, headers)
	if err != nil {
		return nil, classify(err)
	}

	var resp podcastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed podcast body: %v", ErrTransient, err)
	}

	job := &model.Job{
		ID:           resp.ID,
		Title:        resp.Title,
		Topic:        resp.Topic,
		CategoryID:   resp.CategoryID,
		Duration:     resp.Duration,
		SpeakerMode:  model.SpeakerMode(resp.SpeakerMode),
		State:        mapState(resp.Status),
		Stage:        "Queued",
		ResultURL:    resp.AudioURL,
		ErrorMessage: resp.ErrorMessage,
		CreatedAt:    resp.CreatedAt,
	}
	if job.Title == "" {
		job.Title = resp.Topic
	}
	slog.Info("Backend: Generation accepted", "id", job.ID, "topic", job.Topic)
	return job, nil
}

// Delete removes a job permanently. NotFound is returned for unknown ids;
// callers treat it as already gone.
func (c *Client) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid job id %q", ErrNotFound, id)
	}

	_, err := c.http.Delete(ctx, c.baseURL+"/podcasts/"+id, c.header())
	return classify(err)
}

// Categories lists the discovery categories. Responses are cached.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	body, err := c.http.GetWithHeaders(ctx, c.baseURL+"/podcasts/categories/list", c.header(), "backend:categories")
	if err != nil {
		return nil, classify(err)
	}

	var cats []model.Category
	if err := json.Unmarshal(body, &cats); err != nil {
		return nil, fmt.Errorf("%w: malformed categories body: %v", ErrTransient, err)
	}
	return cats, nil
}

func (c *Client) header() map[string]string {
	return c.creds.Current().Header()
}

// mapState translates backend status strings into job states. The backend
// distinguishes draft/published variants the tracker does not care about.
func mapState(s string) model.JobState {
	switch strings.ToLower(s) {
	case "draft", "queued":
		return model.StateQueued
	case "generating":
		return model.StateGenerating
	case "completed", "published":
		return model.StateCompleted
	case "failed":
		return model.StateFailed
	}
	return model.JobState(strings.ToLower(s))
}
