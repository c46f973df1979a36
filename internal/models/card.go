package models

import "time"

// Fragment slots. Every card is stored as exactly FragmentSlots fragments and a
// fragment's slot is its position in that fixed schema.
const (
	SlotIdentity = iota
	SlotContact
	SlotDigital
	SlotNarrative

	FragmentSlots
)

// SlotName returns a short label for a slot index.
func SlotName(slot int) string {
	switch slot {
	case SlotIdentity:
		return "identity"
	case SlotContact:
		return "contact"
	case SlotDigital:
		return "digital"
	case SlotNarrative:
		return "narrative"
	default:
		return "unknown"
	}
}

// Metadata is the denormalized scalar view of a Record. Every fragment of a card
// stores its own identical copy.
type Metadata struct {
	Name       string `json:"name"`
	JobTitle   string `json:"job_title"`
	Company    string `json:"company"`
	Email      string `json:"email"`
	Location   string `json:"location"`
	Website    string `json:"website"`
	Industry   string `json:"industry"`
	Seniority  string `json:"seniority"`
	ImageHash  string `json:"image_hash"`
	SourceJSON string `json:"source_json"`
}

// Map returns the metadata as a flat string map keyed by the JSON field names.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		"name":        m.Name,
		"job_title":   m.JobTitle,
		"company":     m.Company,
		"email":       m.Email,
		"location":    m.Location,
		"website":     m.Website,
		"industry":    m.Industry,
		"seniority":   m.Seniority,
		"image_hash":  m.ImageHash,
		"source_json": m.SourceJSON,
	}
}

// StoredFragment is one persisted fragment row.
type StoredFragment struct {
	ID        string    `json:"id"`
	CardID    string    `json:"card_id"`
	Slot      int       `json:"slot"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardStatus reports how much of a card the store holds.
type CardStatus string

const (
	CardFound    CardStatus = "found"
	CardNotFound CardStatus = "not_found"
	// CardPartial means fewer than FragmentSlots fragments exist, e.g. after an interrupted add.
	CardPartial CardStatus = "partial"
)

// CardRecord is a card read back from the store.
type CardRecord struct {
	Identity    string     `json:"identity"`
	Status      CardStatus `json:"status"`
	Metadata    Metadata   `json:"metadata"`
	Record      *Record    `json:"record,omitempty"`
	Slots       []int      `json:"slots,omitempty"`
	Fragments   []string   `json:"fragments,omitempty"`
	ImageBase64 string     `json:"image_base64,omitempty"`
}

// Found reports whether every fragment of the card is present.
func (c *CardRecord) Found() bool {
	return c != nil && c.Status == CardFound
}

// NotFoundCard returns the explicit empty-card value for identity.
func NotFoundCard(identity string) *CardRecord {
	return &CardRecord{Identity: identity, Status: CardNotFound}
}
