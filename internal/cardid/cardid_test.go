package cardid

import (
	"testing"

	"github.com/hyperjump/meishi/internal/models"
)

func record(name, hash string) *models.Record {
	r := &models.Record{}
	r.ExtractedInfo.PrimaryInfo.Name.Value = name
	r.ImageMetadata.Hash = hash
	return r
}

func TestIdentity(t *testing.T) {
	got := Identity(record("Ada Lovelace", "abc123"))
	if got != "Ada Lovelace-abc123" {
		t.Errorf("Identity = %q, want %q", got, "Ada Lovelace-abc123")
	}
}

func TestIdentity_deterministic(t *testing.T) {
	hash := ContentHash([]byte("card image bytes"))
	id1 := Identity(record("Grace Hopper", hash))
	id2 := Identity(record("Grace Hopper", hash))
	if id1 != id2 {
		t.Errorf("same image and name should give same identity: %q vs %q", id1, id2)
	}
	other := Identity(record("Grace Hopper", ContentHash([]byte("other image bytes"))))
	if other == id1 {
		t.Errorf("different image bytes should give different identity: %q", other)
	}
}

func TestIdentity_emptyRecord(t *testing.T) {
	if got := Identity(&models.Record{}); got != "-" {
		t.Errorf("empty record identity = %q, want %q", got, "-")
	}
	if got := Identity(nil); got != "-" {
		t.Errorf("nil record identity = %q", got)
	}
}

func TestContentHash(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := ContentHash([]byte("abc")); got != want {
		t.Errorf("ContentHash = %q, want %q", got, want)
	}
}

func TestFragmentIDs(t *testing.T) {
	ids := FragmentIDs("Ada Lovelace-abc123")
	want := []string{
		"Ada Lovelace-abc123_0",
		"Ada Lovelace-abc123_1",
		"Ada Lovelace-abc123_2",
		"Ada Lovelace-abc123_3",
	}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestParseFragmentID(t *testing.T) {
	tests := []struct {
		id       string
		identity string
		slot     int
		ok       bool
	}{
		{"Ada Lovelace-abc123_0", "Ada Lovelace-abc123", 0, true},
		{"Ada Lovelace-abc123_3", "Ada Lovelace-abc123", 3, true},
		{"snake_case_name-ff_2", "snake_case_name-ff", 2, true},
		{"X_9", "", 0, false},
		{"X_a", "", 0, false},
		{"nounderscore", "", 0, false},
	}
	for _, tt := range tests {
		identity, slot, ok := ParseFragmentID(tt.id)
		if ok != tt.ok || identity != tt.identity || slot != tt.slot {
			t.Errorf("ParseFragmentID(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.id, identity, slot, ok, tt.identity, tt.slot, tt.ok)
		}
	}
}

func TestIdentityOf(t *testing.T) {
	if got := IdentityOf("X_2"); got != "X" {
		t.Errorf("IdentityOf(X_2) = %q", got)
	}
	if got := IdentityOf("plain"); got != "plain" {
		t.Errorf("IdentityOf(plain) = %q", got)
	}
}
