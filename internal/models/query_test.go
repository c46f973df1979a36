package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   bool
		wantLimit int
	}{
		{"empty query", &SearchQuery{Query: ""}, true, 0},
		{"valid query", &SearchQuery{Query: "designer", Limit: 3}, false, 3},
		{"sets default limit", &SearchQuery{Query: "x", Limit: 0}, false, DefaultSearchLimit},
		{"caps limit", &SearchQuery{Query: "x", Limit: 500}, false, MaxSearchLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.query.Limit, tt.wantLimit)
			}
		})
	}
}

func TestSearchQuery_ValidateWithLimits(t *testing.T) {
	q := &SearchQuery{Query: "cto"}
	if err := q.ValidateWithLimits(7, 10); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 7 {
		t.Errorf("default limit: got %d, want 7", q.Limit)
	}
	q = &SearchQuery{Query: "cto", Limit: 11}
	_ = q.ValidateWithLimits(7, 10)
	if q.Limit != 10 {
		t.Errorf("capped limit: got %d, want 10", q.Limit)
	}
}

func TestContactInfo_PrimaryValues(t *testing.T) {
	var empty ContactInfo
	if empty.PrimaryEmail() != "" || empty.PrimaryAddress() != "" || empty.PrimaryPhone() != "" {
		t.Error("empty contact info should yield empty primary values")
	}
	c := ContactInfo{
		Emails:    []TypedValue{{Value: "a@x.io"}, {Value: "b@x.io"}},
		Addresses: []TypedValue{{Value: "Lagos"}},
	}
	if c.PrimaryEmail() != "a@x.io" {
		t.Errorf("PrimaryEmail = %q", c.PrimaryEmail())
	}
	if c.PrimaryAddress() != "Lagos" {
		t.Errorf("PrimaryAddress = %q", c.PrimaryAddress())
	}
}

func TestSlotName(t *testing.T) {
	want := []string{"identity", "contact", "digital", "narrative"}
	for slot, name := range want {
		if got := SlotName(slot); got != name {
			t.Errorf("SlotName(%d) = %q, want %q", slot, got, name)
		}
	}
	if SlotName(FragmentSlots) != "unknown" {
		t.Error("out of range slot should be unknown")
	}
}
