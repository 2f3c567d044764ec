// Package transcribe talks to the speech-to-text backend and keeps uploaded
// audio on disk.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// maxErrorBody caps how much of a failed upstream response is kept.
const maxErrorBody = 2048

// UpstreamError is returned when the transcription service answers with a
// non-200 status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("transcription service returned %d: %s", e.StatusCode, e.Body)
}

// Client posts audio files to an OpenAI-compatible whisper endpoint.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		url:    url,
		apiKey: apiKey,
	}
}

// Transcribe uploads the audio read from r as the multipart field "file" and
// returns the recognised text.
func (c *Client) Transcribe(ctx context.Context, filename string, r io.Reader) (string, error) {
	const op = "transcribe.Client.Transcribe"

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%s: %w", op, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", op, err)
	}
	return out.Text, nil
}
