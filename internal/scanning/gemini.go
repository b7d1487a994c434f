package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/billscan/internal/acquisition"
	"github.com/zombor/billscan/internal/table"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini extractor
func NewGemini(apiKey string, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Extract sends all images with the extraction prompt in a single request
func (g *Gemini) Extract(ctx context.Context, images []acquisition.Image) ([]table.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prepared, err := prepareImages(images)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix; everything is PNG after preparation
	parts := make([]genai.Part, 0, len(prepared)+1)
	for _, img := range prepared {
		parts = append(parts, genai.ImageData("png", img.png))
	}
	parts = append(parts, genai.Text(billExtractPrompt))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrMalformedResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	records, err := parseRecordsJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing gemini response: %w", err)
	}
	return records, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
