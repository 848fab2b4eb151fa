// Package textops exposes the metered summarize and translate endpoints and
// the client for the external service that does the actual text work.
package textops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrServiceUnavailable = errors.New("text service unavailable")

type SummarizeInput struct {
	Text      string `json:"text"`
	Language  string `json:"language"`
	MaxLength int    `json:"max_length"`
}

type TranslateInput struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type Summarizer interface {
	Summarize(ctx context.Context, in SummarizeInput) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, in TranslateInput) (string, error)
}

// Client calls a text service exposing POST /summarize and POST /translate.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

func (c *Client) Summarize(ctx context.Context, in SummarizeInput) (string, error) {
	var out summarizeResponse
	if err := c.post(ctx, "/summarize", in, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (c *Client) Translate(ctx context.Context, in TranslateInput) (string, error) {
	var out translateResponse
	if err := c.post(ctx, "/translate", in, &out); err != nil {
		return "", err
	}
	return out.TranslatedText, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrServiceUnavailable, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
