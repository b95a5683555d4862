// Package remote - Inference through an external model service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/pkg/errors"
)

// Config describes the remote model service.
type Config struct {
	// URL receives the multipart POST.
	URL string
	// HealthURL is probed by CheckHealth. Defaults to URL + "/health".
	HealthURL string
	// FieldName is the multipart file field. Defaults to "file".
	FieldName string
	// Timeout bounds one request. Defaults to 30s.
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
	// MaxImageSide downscales larger images before upload. Zero sends them unchanged.
	MaxImageSide int
}

// Client posts images to the service and parses its detections.
type Client struct {
	httpClient *http.Client
	url        string
	healthURL  string
	field      string
	headers    map[string]string
	maxSide    int
}

// prediction is one entry of the service response. Both "label" and "class" name the class.
type prediction struct {
	Label      string  `json:"label"`
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Width      float32 `json:"width"`
	Height     float32 `json:"height"`
}

type response struct {
	Detections []prediction `json:"detections"`
}

// New creates a client.
//
// Arguments:
//   - cfg: The service configuration. URL is required.
//
// Returns:
//   - *Client: The client.
//   - error: If URL is missing.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote inference URL is required")
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = strings.TrimRight(cfg.URL, "/") + "/health"
	}
	if cfg.FieldName == "" {
		cfg.FieldName = "file"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        cfg.URL,
		healthURL:  cfg.HealthURL,
		field:      cfg.FieldName,
		headers:    cfg.Headers,
		maxSide:    cfg.MaxImageSide,
	}, nil
}

// Infer sends img to the service.
//
// Arguments:
//   - ctx: Bounds the request.
//   - img: The image. Its original bytes are sent when present, a PNG encoding otherwise.
//
// Returns:
//   - []detection.Candidate: The service's detections. Entries with a zero sized box carry no box.
//   - error: On transport failure, a non-200 status or an unparsable body.
func (c *Client) Infer(ctx context.Context, img *images.Image) ([]detection.Candidate, error) {
	data, filename, err := payload(img, c.maxSide)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(c.field, filename)
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if _, err := part.Write(data); err != nil {
		return nil, errors.Wrap(err, "write image data")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	out := make([]detection.Candidate, 0, len(result.Detections))
	for _, p := range result.Detections {
		label := p.Label
		if label == "" {
			label = p.Class
		}
		cand := detection.Candidate{Label: label, Confidence: p.Confidence}
		if p.Width > 0 && p.Height > 0 {
			box := detection.FromXYWH(p.X, p.Y, p.Width, p.Height)
			cand.Box = &box
		}
		out = append(out, cand)
	}
	return out, nil
}

// CheckHealth probes the service health endpoint.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("model service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func payload(img *images.Image, maxSide int) ([]byte, string, error) {
	if img == nil {
		return nil, "", errors.Wrap(images.ErrInvalidImage, "no image")
	}
	if img.Decoded() != nil {
		small, err := images.Downscale(img, maxSide)
		if err != nil {
			return nil, "", err
		}
		img = small
	}
	if len(img.Data) > 0 && img.Format == "" {
		return img.Data, fmt.Sprintf("image.%s", images.FormatJPEG), nil
	}
	data, format, err := images.Bytes(img)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("image.%s", format), nil
}
