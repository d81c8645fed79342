package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

const MaxTags = 6

var flatObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

type rawClassification struct {
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Caption    string   `json:"caption"`
	Confidence float64  `json:"confidence"`
}

// ParseClassification decodes model output: the whole content as JSON first,
// then the first brace-delimited flat object inside it. A payload without a
// category is a format error.
func ParseClassification(content string) (domain.Classification, error) {
	content = strings.TrimSpace(content)

	var raw rawClassification
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		match := flatObjectPattern.FindString(content)
		if match == "" {
			return domain.Classification{}, domain.WrapError(domain.ErrRemoteFormat, "parse classification", errors.New("no json object in model output"))
		}
		raw = rawClassification{}
		if err := json.Unmarshal([]byte(match), &raw); err != nil {
			return domain.Classification{}, domain.WrapError(domain.ErrRemoteFormat, "parse classification", err)
		}
	}
	if strings.TrimSpace(raw.Category) == "" {
		return domain.Classification{}, domain.WrapError(domain.ErrRemoteFormat, "parse classification", errors.New("model output has no category"))
	}
	return normalize(raw), nil
}

func normalize(raw rawClassification) domain.Classification {
	category, _ := domain.ParseCategory(raw.Category)

	tags := make([]string, 0, len(raw.Tags))
	for _, tag := range raw.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == MaxTags {
			break
		}
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return domain.Classification{
		Category:   category,
		Tags:       tags,
		Caption:    strings.TrimSpace(raw.Caption),
		Confidence: confidence,
	}
}
