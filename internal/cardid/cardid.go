// Package cardid derives deterministic card and fragment identifiers.
package cardid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/meishi/internal/models"
)

// Identity returns "{name}-{image hash}" for a record. The name is used raw and
// the hash is taken as already computed by the loader; nothing is re-hashed.
// Same image bytes and extracted name always yield the same identity.
func Identity(record *models.Record) string {
	if record == nil {
		return "-"
	}
	return Join(record.ExtractedInfo.PrimaryInfo.Name.Value, record.ImageMetadata.Hash)
}

// Join builds an identity from a display key and a content hash.
func Join(displayKey, contentHash string) string {
	return displayKey + "-" + contentHash
}

// ContentHash returns the hex SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FragmentID returns the store id of one fragment slot of a card.
func FragmentID(identity string, slot int) string {
	return fmt.Sprintf("%s_%d", identity, slot)
}

// FragmentIDs returns the ids of every fragment slot of a card, in slot order.
func FragmentIDs(identity string) []string {
	ids := make([]string, models.FragmentSlots)
	for i := range ids {
		ids[i] = FragmentID(identity, i)
	}
	return ids
}

// ParseFragmentID splits a fragment id on its last underscore. Identities may
// themselves contain underscores; the slot suffix never does.
func ParseFragmentID(id string) (identity string, slot int, ok bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return "", 0, false
	}
	slot, err := strconv.Atoi(id[i+1:])
	if err != nil || slot < 0 || slot >= models.FragmentSlots {
		return "", 0, false
	}
	return id[:i], slot, true
}

// IdentityOf returns the card identity of a fragment id, or the id itself when
// it carries no slot suffix.
func IdentityOf(id string) string {
	identity, _, ok := ParseFragmentID(id)
	if !ok {
		return id
	}
	return identity
}
