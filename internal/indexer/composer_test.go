package indexer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/meishi/internal/models"
)

func adaRecord() *models.Record {
	r := &models.Record{}
	r.ImageMetadata.Hash = "abc123"
	r.ExtractedInfo.PrimaryInfo.Name.Value = "Ada Lovelace"
	r.ExtractedInfo.PrimaryInfo.JobTitle.Value = "Mathematician"
	r.ExtractedInfo.PrimaryInfo.Company.TextValue = "Analytical Engines"
	r.ExtractedInfo.ContactInfo.Emails = []models.TypedValue{{Value: "ada@engines.uk"}, {Value: "ada@home.uk"}}
	r.ExtractedInfo.ContactInfo.Addresses = []models.TypedValue{{Value: "London"}}
	r.ExtractedInfo.DigitalPresence.Website.Value = "engines.uk"
	r.ExtractedInfo.DigitalPresence.SocialMedia = []models.SocialHandle{
		{Platform: "twitter", Handle: "@ada"},
		{Platform: "linkedin", Handle: "ada-lovelace"},
	}
	r.ExtractedInfo.ContextualSummary.ProfessionalSummary = "First programmer."
	r.ExtractedInfo.ContextualSummary.IndustryInference = "computing"
	r.ExtractedInfo.ContextualSummary.SeniorityEstimate = "senior"
	return r
}

func TestCompose_Fragments(t *testing.T) {
	fragments, _ := Compose(adaRecord())
	want := []string{
		"Ada Lovelace is a Mathematician in computing, based in London.",
		"Contact: ada@engines.uk | Location: London | Website: engines.uk",
		"Social media: twitter:@ada, linkedin:ada-lovelace",
		"professional_summary: First programmer. expertise in computing and senior",
	}
	if len(fragments) != models.FragmentSlots {
		t.Fatalf("got %d fragments, want %d", len(fragments), models.FragmentSlots)
	}
	for i := range want {
		if fragments[i] != want[i] {
			t.Errorf("fragment %d = %q, want %q", i, fragments[i], want[i])
		}
	}
}

func TestCompose_Metadata(t *testing.T) {
	rec := adaRecord()
	_, meta := Compose(rec)

	if meta.Name != "Ada Lovelace" || meta.JobTitle != "Mathematician" || meta.Company != "Analytical Engines" {
		t.Errorf("primary fields = %+v", meta)
	}
	if meta.Email != "ada@engines.uk" {
		t.Errorf("Email = %q, want the first email", meta.Email)
	}
	if meta.Location != "London" || meta.Website != "engines.uk" {
		t.Errorf("Location/Website = %q/%q", meta.Location, meta.Website)
	}
	if meta.Industry != "computing" || meta.Seniority != "senior" || meta.ImageHash != "abc123" {
		t.Errorf("summary fields = %+v", meta)
	}

	var back models.Record
	if err := json.Unmarshal([]byte(meta.SourceJSON), &back); err != nil {
		t.Fatalf("source_json does not decode: %v", err)
	}
	if back.ExtractedInfo.DigitalPresence.SocialMedia[1].Handle != "ada-lovelace" {
		t.Errorf("source_json lost data: %+v", back)
	}
}

func TestCompose_EmptyRecord(t *testing.T) {
	for _, rec := range []*models.Record{nil, {}} {
		fragments, meta := Compose(rec)
		if len(fragments) != models.FragmentSlots {
			t.Fatalf("got %d fragments, want %d", len(fragments), models.FragmentSlots)
		}
		if fragments[models.SlotDigital] != "" {
			t.Errorf("digital fragment = %q, want empty", fragments[models.SlotDigital])
		}
		for _, key := range []string{"name", "job_title", "company", "email", "location", "website", "industry", "seniority", "image_hash", "source_json"} {
			if _, ok := meta.Map()[key]; !ok {
				t.Errorf("metadata missing key %q", key)
			}
		}
		if meta.SourceJSON == "" {
			t.Error("source_json should be present even for an empty record")
		}
	}
}

func TestCompose_NoSocialMediaGivesEmptyFragment(t *testing.T) {
	rec := adaRecord()
	rec.ExtractedInfo.DigitalPresence.SocialMedia = nil
	fragments, _ := Compose(rec)
	if fragments[models.SlotDigital] != "" {
		t.Errorf("digital fragment = %q, want empty", fragments[models.SlotDigital])
	}
}

func TestCompose_CollapsesWhitespace(t *testing.T) {
	rec := adaRecord()
	rec.ExtractedInfo.ContextualSummary.ProfessionalSummary = "  First\n\nprogrammer.\t"
	rec.ExtractedInfo.ContactInfo.Addresses = nil
	fragments, _ := Compose(rec)
	for i, f := range fragments {
		if strings.Contains(f, "  ") || strings.ContainsAny(f, "\n\t") {
			t.Errorf("fragment %d not collapsed: %q", i, f)
		}
	}
	if fragments[models.SlotContact] != "Contact: ada@engines.uk | Location: | Website: engines.uk" {
		t.Errorf("contact fragment = %q", fragments[models.SlotContact])
	}
}

func TestCompose_Deterministic(t *testing.T) {
	f1, m1 := Compose(adaRecord())
	f2, m2 := Compose(adaRecord())
	for i := range f1 {
		if f1[i] != f2[i] {
			t.Errorf("fragment %d differs between runs", i)
		}
	}
	if m1 != m2 {
		t.Error("metadata differs between runs")
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"  a  b  ", "a b"},
		{"a\n\tb", "a b"},
		{"no-change", "no-change"},
		{"\ufeffAda\u200b Lovelace", "Ada Lovelace"},
		{"Tokyo\x00 | Osaka", "Tokyo | Osaka"},
		{"山田　太郎", "山田 太郎"},
	}
	for _, tt := range tests {
		if got := Preprocess(tt.in); got != tt.want {
			t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
