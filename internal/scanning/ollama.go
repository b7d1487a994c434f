package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

// Ollama implements the Extractor interface using a local Ollama vision model
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama extractor.
// Vision models that read printed tables reasonably well include llava:1.6,
// qwen2-vl:7b and bakllava.
func NewOllama(baseURL string, modelName string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second // vision models are slow on CPU
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract sends all images in one chat message and parses the returned records
func (o *Ollama) Extract(ctx context.Context, images []acquisition.Image) ([]table.Record, error) {
	prepared, err := prepareImages(images)
	if err != nil {
		return nil, err
	}

	encoded := make([]string, 0, len(prepared))
	for _, img := range prepared {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img.png))
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading bills and invoices. You carefully read every line of the images and transcribe it accurately.",
			},
			{
				Role:    "user",
				Content: billExtractPrompt,
				Images:  encoded,
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("ollama API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	records, err := parseRecordsJSON(chatResp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama response: %w", err)
	}
	return records, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
