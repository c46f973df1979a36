package indexer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/meishi/internal/models"
)

// Compose turns a record into its models.FragmentSlots fragment texts and the
// metadata shared by all of them. It never fails: missing fields render as empty
// segments. The digital-presence fragment is empty when the card lists no social accounts.
func Compose(record *models.Record) ([]string, models.Metadata) {
	if record == nil {
		record = &models.Record{}
	}
	info := record.ExtractedInfo
	name := info.PrimaryInfo.Name.Value
	jobTitle := info.PrimaryInfo.JobTitle.Value
	industry := info.ContextualSummary.IndustryInference
	seniority := info.ContextualSummary.SeniorityEstimate
	email := info.ContactInfo.PrimaryEmail()
	address := info.ContactInfo.PrimaryAddress()
	website := info.DigitalPresence.Website.Value

	fragments := make([]string, models.FragmentSlots)
	fragments[models.SlotIdentity] = Preprocess(fmt.Sprintf("%s is a %s in %s, based in %s.",
		name, jobTitle, industry, address))
	fragments[models.SlotContact] = Preprocess(fmt.Sprintf("Contact: %s | Location: %s | Website: %s",
		email, address, website))
	fragments[models.SlotDigital] = Preprocess(socialFragment(info.DigitalPresence.SocialMedia))
	fragments[models.SlotNarrative] = Preprocess(fmt.Sprintf("professional_summary: %s expertise in %s and %s",
		info.ContextualSummary.ProfessionalSummary, industry, seniority))

	meta := models.Metadata{
		Name:       name,
		JobTitle:   jobTitle,
		Company:    info.PrimaryInfo.Company.TextValue,
		Email:      email,
		Location:   address,
		Website:    website,
		Industry:   industry,
		Seniority:  seniority,
		ImageHash:  record.ImageMetadata.Hash,
		SourceJSON: sourceJSON(record),
	}
	return fragments, meta
}

func socialFragment(handles []models.SocialHandle) string {
	if len(handles) == 0 {
		return ""
	}
	parts := make([]string, len(handles))
	for i, h := range handles {
		parts[i] = h.Platform + ":" + h.Handle
	}
	return "Social media: " + strings.Join(parts, ", ")
}

// sourceJSON is the canonical serialization of the whole record.
func sourceJSON(record *models.Record) string {
	// a Record holds only strings, bools and slices of them; Marshal cannot fail
	b, _ := json.Marshal(record)
	return string(b)
}
