// ABOUTME: Wire types for the OpenAI-compatible Images API
// ABOUTME: Request bodies, response envelopes and payload extraction helpers

package imageclient

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

type generationRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesResponse struct {
	Error *apiError   `json:"error,omitempty"`
	Data  []imageData `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

type imageData struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// decodeB64 accepts both bare base64 and data URLs.
func decodeB64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		const marker = ";base64,"
		idx := strings.Index(payload, marker)
		if idx < 0 {
			return nil, errors.New("data URL missing base64 marker")
		}
		payload = payload[idx+len(marker):]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image base64: %w", err)
	}
	return raw, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
