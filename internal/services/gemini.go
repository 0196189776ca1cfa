package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

const ctAnalysisPrompt = "Analyze this CT scan image and return structured data with:\n" +
	"1. Classification of CT scan type and body region\n" +
	"2. Bounding boxes for major anatomical structures\n" +
	"3. General observations\n\n" +
	"IMPORTANT - Use NORMALIZED coordinates [x1, y1, x2, y2] in range 0.0-1.0 where:\n" +
	"- (0.0, 0.0) is the top-left corner\n" +
	"- (1.0, 1.0) is the bottom-right corner\n" +
	"- Example: center of image would be approximately [0.4, 0.4, 0.6, 0.6]\n\n" +
	"Confidence scores should be 0.0-1.0. Educational purposes only."

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"classification": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"label":       {Type: genai.TypeString, Description: "CT scan type and body region"},
				"confidence":  {Type: genai.TypeNumber},
				"description": {Type: genai.TypeString},
			},
			Required: []string{"label", "confidence", "description"},
		},
		"bounding_boxes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label": {Type: genai.TypeString},
					"coordinates": {
						Type:        genai.TypeArray,
						Description: "Normalized [x1, y1, x2, y2] in 0.0-1.0",
						Items:       &genai.Schema{Type: genai.TypeNumber},
					},
					"confidence": {Type: genai.TypeNumber},
				},
				Required: []string{"label", "coordinates", "confidence"},
			},
		},
		"general_observations": {Type: genai.TypeString},
	},
	Required: []string{"classification", "bounding_boxes", "general_observations"},
}

type geminiProvider struct {
	log    *logger.Logger
	apiKey string
	model  string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiProvider returns a provider whose client is created on first use.
func NewGeminiProvider(log *logger.Logger, apiKey, model string) InferenceProvider {
	return &geminiProvider{
		log:    log.With("service", "GeminiProvider"),
		apiKey: apiKey,
		model:  model,
	}
}

func (gp *geminiProvider) getClient() (*genai.Client, error) {
	gp.once.Do(func() {
		if gp.apiKey == "" {
			gp.initErr = fmt.Errorf("%w: GOOGLE_GENERATIVE_AI_API_KEY is not set", ErrUpstreamInference)
			return
		}
		gp.client, gp.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  gp.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if gp.initErr == nil {
			gp.log.Info("Gemini client initialized", "model", gp.model)
		}
	})
	return gp.client, gp.initErr
}

func (gp *geminiProvider) Analyze(ctx context.Context, img ImageInput) (*Analysis, error) {
	client, err := gp.getClient()
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(ctAnalysisPrompt),
			genai.NewPartFromBytes(img.Data, img.MediaType),
		}, genai.RoleUser),
	}
	resp, err := client.Models.GenerateContent(ctx, gp.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisSchema,
	})
	if err != nil {
		gp.log.Warn("Gemini request failed", "error", err)
		return nil, fmt.Errorf("%w: %s", ErrUpstreamInference, err.Error())
	}
	return parseAnalysisJSON(resp.Text())
}

func parseAnalysisJSON(raw string) (*Analysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrUpstreamInference)
	}
	var out Analysis
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: undecodable model response: %s", ErrUpstreamInference, err.Error())
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
