// Package llm - Vision LLM backend that answers with a single waste label.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/pkg/errors"
)

// DefaultBaseURL is the OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultTemperature is used when Config.Temperature is nil.
const DefaultTemperature = 0.1

// DefaultMaxImageSide bounds the longest image side sent to the model.
const DefaultMaxImageSide = 1024

// Prompt lists the answer vocabulary. Every answer is resolved through the "llm" label table.
const Prompt = `You are a waste classification system. Classify the waste in the image into one of these categories:
1. E_WASTE_USEFUL: electronic devices or parts that can be refurbished or reused.
2. E_WASTE_NOT_USEFUL: electronic waste that cannot be reused.
3. NON_ORGANIC: waste that is not biodegradable, for example plastic, metal, glass.
4. BIOGAS: organic waste suited to biogas production, for example meat, dairy, cooked food.
5. COMPOST: organic waste that can be composted, for example vegetables, fruits, seeds, grains.

If you are not sure about the category, answer UNIDENTIFIED.
Answer with the category name only, without any explanation.`

// Config configures the chat completions client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	// Temperature nil uses DefaultTemperature. Zero is a valid, deterministic setting.
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	// MaxImageSide downscales larger uploads before they are sent. Defaults to 1024.
	MaxImageSide int
}

// Client asks a vision chat model for one label per image.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxSide     int
}

// New creates a client.
//
// Arguments:
//   - cfg: The client configuration. APIKey is required.
//
// Returns:
//   - *Client: The client.
//   - error: If the API key is missing or the temperature is negative.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	temperature := DefaultTemperature
	if cfg.Temperature != nil {
		if *cfg.Temperature < 0 {
			return nil, errors.Errorf("LLM temperature %v is negative", *cfg.Temperature)
		}
		temperature = *cfg.Temperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxSide := cfg.MaxImageSide
	if maxSide == 0 {
		maxSide = DefaultMaxImageSide
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		maxTokens:   maxTokens,
		maxSide:     maxSide,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Infer asks the model to name the waste category of img.
//
// Returns:
//   - []detection.Candidate: Exactly one candidate. Its confidence is 1 because the model reports
//     none; the caller applies its own policy.
//   - error: On transport failure, a non-200 status or an empty answer.
func (c *Client) Infer(ctx context.Context, img *images.Image) ([]detection.Candidate, error) {
	dataURL, err := dataURL(img, c.maxSide)
	if err != nil {
		return nil, err
	}

	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{
				"role":    "system",
				"content": "You are a waste classification system.",
			},
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": Prompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				},
			},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "parse response")
	}
	if len(response.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	label := CleanAnswer(response.Choices[0].Message.Content)
	if label == "" {
		return nil, errors.New("empty answer from LLM")
	}

	return []detection.Candidate{{Label: label, Confidence: 1}}, nil
}

// CleanAnswer strips markdown, quotes, numbering and trailing punctuation from a one-word answer.
func CleanAnswer(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.Trim(s, " \t\r\n*`\"'.")
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	// "5. COMPOST" or "COMPOST: because ..."
	if i := strings.Index(s, ". "); i >= 0 && i <= 2 {
		s = s[i+2:]
	}
	if i := strings.IndexAny(s, ":("); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, " \t*`\"'.")
}

func dataURL(img *images.Image, maxSide int) (string, error) {
	if img == nil {
		return "", errors.Wrap(images.ErrInvalidImage, "no image")
	}
	if img.Decoded() != nil {
		small, err := images.Downscale(img, maxSide)
		if err != nil {
			return "", err
		}
		img = small
	}
	data, format, err := images.Bytes(img)
	if err != nil {
		return "", err
	}
	return "data:image/" + string(format) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
