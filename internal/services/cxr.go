package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
)

type cxrProvider struct {
	log     *logger.Logger
	client  *http.Client
	baseURL string
}

type cxrRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type cxrPrediction struct {
	Label string  `json:"label"`
	Prob  float64 `json:"prob"`
}

type cxrResponse struct {
	Model string          `json:"model"`
	Top5  []cxrPrediction `json:"top5"`
}

// NewCXRProvider talks to the chest X-ray classifier behind VISION_API_URL.
func NewCXRProvider(log *logger.Logger, baseURL string, timeout time.Duration) (InferenceProvider, error) {
	serviceLog := log.With("service", "CXRProvider")
	if baseURL == "" {
		return nil, fmt.Errorf("missing VISION_API_URL")
	}
	return &cxrProvider{
		log:     serviceLog,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (cp *cxrProvider) Analyze(ctx context.Context, img ImageInput) (*Analysis, error) {
	body, err := json.Marshal(cxrRequest{ImageBase64: base64.StdEncoding.EncodeToString(img.Data)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cp.baseURL+"/predict/cxr", bytes.NewReader(body))
	if err != nil {
		cp.log.Warn("failed to build new request", "error", err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := cp.client.Do(req)
	if err != nil {
		cp.log.Warn("failed to call vision api", "error", err)
		return nil, fmt.Errorf("%w: %s", ErrUpstreamInference, err.Error())
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		cp.log.Warn("failed to read vision api response body", "error", err)
		return nil, fmt.Errorf("%w: %s", ErrUpstreamInference, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cp.log.Warn("vision api responded with non-2xx", "statusCode", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("%w: vision api HTTP %d: %s", ErrUpstreamInference, resp.StatusCode, string(bodyBytes))
	}

	var out cxrResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return nil, fmt.Errorf("%w: undecodable vision api response: %s", ErrUpstreamInference, err.Error())
	}
	if len(out.Top5) == 0 {
		return nil, fmt.Errorf("%w: vision api returned no predictions", ErrUpstreamInference)
	}
	cp.log.Info("Vision api call success", "model", out.Model, "top", out.Top5[0].Label)
	return analysisFromCXR(out), nil
}

func analysisFromCXR(r cxrResponse) *Analysis {
	top := r.Top5[0]
	var obs strings.Builder
	fmt.Fprintf(&obs, "Top findings from %s:", r.Model)
	for _, p := range r.Top5 {
		fmt.Fprintf(&obs, " %s %.1f%%;", p.Label, clampPercentage(p.Prob*100))
	}
	return &Analysis{
		Classification: Classification{
			Label:       top.Label,
			Confidence:  top.Prob,
			Description: "Chest X-ray multi-label classification. Probabilities are independent per finding.",
		},
		BoundingBoxes:       []BoundingBox{},
		GeneralObservations: strings.TrimSuffix(obs.String(), ";"),
	}
}
