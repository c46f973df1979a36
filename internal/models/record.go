// Package models defines core data structures for card records, fragments, queries, and search results.
package models

// Record is the structured output of extracting one business card image.
// Field names follow the JSON emitted by the extraction model so that its
// output decodes directly; absent keys decode to zero values.
type Record struct {
	ImageMetadata ImageMetadata `json:"image_metadata"`
	ExtractedInfo ExtractedInfo `json:"extracted_info"`
}

// ImageMetadata describes the source image of a record. Hash is the hex
// SHA-256 of the image bytes, computed once when the image is loaded.
type ImageMetadata struct {
	Hash     string `json:"hash"`
	MIMEType string `json:"mime_type,omitempty"`
	Source   string `json:"source,omitempty"`
	Base64   string `json:"base64,omitempty"`
}

// ExtractedInfo holds the fields read from the card.
type ExtractedInfo struct {
	PrimaryInfo       PrimaryInfo       `json:"primary_info"`
	ContactInfo       ContactInfo       `json:"contact_info"`
	DigitalPresence   DigitalPresence   `json:"digital_presence"`
	ContextualSummary ContextualSummary `json:"contextual_summary"`
}

// ScoredValue is a single extracted value with the model's confidence label.
type ScoredValue struct {
	Value      string `json:"value"`
	Confidence string `json:"confidence,omitempty"`
}

// Company is the company field; the flags record whether a logo or QR code
// corroborated the text value.
type Company struct {
	TextValue        string `json:"text_value"`
	LogoIdentified   bool   `json:"logo_identified"`
	QRCodeIdentified bool   `json:"QRcode_identifies"`
	Confidence       string `json:"confidence,omitempty"`
}

// PrimaryInfo holds who the card belongs to.
type PrimaryInfo struct {
	Name     ScoredValue `json:"name"`
	JobTitle ScoredValue `json:"job_title"`
	Company  Company     `json:"company"`
}

// TypedValue is a contact channel entry such as an email, phone, or address.
type TypedValue struct {
	Value      string `json:"value"`
	Type       string `json:"type,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// ContactInfo lists contact channels. Any list may be empty.
type ContactInfo struct {
	Emails    []TypedValue `json:"emails"`
	Phones    []TypedValue `json:"phones"`
	Addresses []TypedValue `json:"addresses"`
}

// SocialHandle is one social media account found on the card.
type SocialHandle struct {
	Platform       string `json:"platform"`
	Handle         string `json:"handle"`
	IdentifiedFrom string `json:"identified_from,omitempty"`
	Confidence     string `json:"confidence,omitempty"`
}

// DigitalPresence holds the website and social handles.
type DigitalPresence struct {
	Website     ScoredValue    `json:"website"`
	SocialMedia []SocialHandle `json:"social_media"`
}

// ContextualSummary is the model's free-text interpretation of the card.
// SeniorityEstimate carries its justification inline.
type ContextualSummary struct {
	ProfessionalSummary string `json:"professional_summary"`
	IndustryInference   string `json:"industry_inference"`
	SeniorityEstimate   string `json:"seniority_estimate"`
}

// PrimaryEmail returns the first email value or "".
func (c ContactInfo) PrimaryEmail() string {
	return firstValue(c.Emails)
}

// PrimaryPhone returns the first phone value or "".
func (c ContactInfo) PrimaryPhone() string {
	return firstValue(c.Phones)
}

// PrimaryAddress returns the first address value or "".
func (c ContactInfo) PrimaryAddress() string {
	return firstValue(c.Addresses)
}

func firstValue(values []TypedValue) string {
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}
