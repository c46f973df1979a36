// Package extract turns card images into structured card fields.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/meishi/internal/loader"
	"github.com/hyperjump/meishi/internal/models"
)

// Extractor reads the fields of one business card image.
type Extractor interface {
	Extract(ctx context.Context, img *loader.Image) (*models.ExtractedInfo, error)
}

// ErrUnparsable is returned by ParseResponse when the model output is not a card object.
var ErrUnparsable = errors.New("unparsable extraction output")

// Prompt is the instruction sent with every image. The JSON layout matches models.ExtractedInfo.
const Prompt = `You are a business card interpreter with multimodal understanding.
Analyze this business card and extract all available information, including explicit text and
context implied by visual elements.

Guidelines:
1. Analyze the whole card: text, layout, colors, logos and visual hierarchy.
2. Identify the company from a logo even if its name is not written.
3. Extract social media accounts from icons even if platform names are not written.
4. Recognize phone and email formats.
5. Infer seniority from the position in the card hierarchy when the title is unclear.

Reply with JSON only, in exactly this format:
{
  "primary_info": {
    "name": {"value": "", "confidence": "high/medium/low"},
    "job_title": {"value": "", "confidence": "high/medium/low"},
    "company": {
      "text_value": "",
      "logo_identified": false,
      "QRcode_identifies": false,
      "confidence": "high/medium/low"
    }
  },
  "contact_info": {
    "emails": [{"value": "", "type": "work/personal", "confidence": ""}],
    "phones": [{"value": "", "type": "work/mobile/fax", "confidence": ""}],
    "addresses": [{"value": "", "type": "work/headquarters", "confidence": ""}]
  },
  "digital_presence": {
    "website": {"value": "", "confidence": ""},
    "social_media": [
      {"platform": "linkedin/twitter/etc", "handle": "", "identified_from": "text/icon", "confidence": ""}
    ]
  },
  "contextual_summary": {
    "professional_summary": "A detailed summary naming the person, profession, title, company, location and expertise, written so a search engine can find this person by any relevant query.",
    "industry_inference": "The relevant industries and professional fields.",
    "seniority_estimate": "The estimated seniority followed by the reasoning in brackets, considering more than the title: e.g. a non-corporate email domain, personal branding, website credibility."
  }
}`

// ParseResponse decodes model output into card fields. Surrounding whitespace and
// markdown code fences are removed first. Invalid UTF-8 is replaced, not rejected.
func ParseResponse(text string) (*models.ExtractedInfo, error) {
	cleaned := StripFences(text)
	if !utf8.ValidString(cleaned) {
		cleaned = strings.ToValidUTF8(cleaned, "�")
	}
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUnparsable)
	}
	var info models.ExtractedInfo
	if err := json.Unmarshal([]byte(cleaned), &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparsable, err)
	}
	return &info, nil
}

// StripFences trims text and removes a wrapping ```json or ``` fence.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(s, fence) && strings.HasSuffix(s, "```") && len(s) >= len(fence)+3 {
			s = strings.TrimSpace(s[len(fence) : len(s)-3])
		}
	}
	return s
}
