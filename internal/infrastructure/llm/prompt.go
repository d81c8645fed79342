package llm

import (
	"strings"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

// ClassificationPrompt instructs a vision model to answer with one flat JSON object.
func ClassificationPrompt() string {
	labels := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		labels = append(labels, string(c))
	}

	return `You are a photography assistant. Look at the photo and classify it.
Return strict JSON object with keys:
category (one of: ` + strings.Join(labels, ", ") + `),
tags (array of 3 to 6 short keywords),
caption (one short sentence, at most 25 characters),
confidence (number from 0 to 1).
No markdown, no extra keys.`
}
