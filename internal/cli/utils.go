// Package cli formats cards, search results and index status for the meishi CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/pkg/utils"
)

// OutputFormat is the format of command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --format flag value. Empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const rule = "─────────────────────────────────────────────────────────"

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d cards in %dms (%d fragments fetched)\n\n",
		response.Total, response.QueryTime, response.Fetched)
	for _, result := range response.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Similarity: %.4f | Matched: %s\n", result.Rank, result.Similarity, result.MatchedSlot)
		writeCardSummary(w, result.Identity, result.Metadata, result.Record)
		fmt.Fprintln(w)
	}
	return nil
}

// WriteLookupResults writes keyword lookup results to w in the given format.
func WriteLookupResults(w io.Writer, response *models.LookupResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d cards in %dms\n", response.Total, response.QueryTime)
	if response.Total == 0 && response.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", response.Suggestion)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", result.Rank, result.Score)
		writeCardSummary(w, result.Identity, result.Metadata, result.Record)
		fmt.Fprintln(w)
	}
	return nil
}

func writeCardSummary(w io.Writer, identity string, meta models.Metadata, info *models.ExtractedInfo) {
	fmt.Fprintf(w, "ID: %s\n", identity)
	if meta.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", meta.Name)
	}
	if role := joinNonEmpty(" @ ", meta.JobTitle, meta.Company); role != "" {
		fmt.Fprintf(w, "Role: %s\n", role)
	}
	if meta.Email != "" {
		fmt.Fprintf(w, "Email: %s\n", meta.Email)
	}
	if meta.Location != "" {
		fmt.Fprintf(w, "Location: %s\n", meta.Location)
	}
	if info != nil && info.ContextualSummary.ProfessionalSummary != "" {
		fmt.Fprintf(w, "\n%s\n", TruncateWords(info.ContextualSummary.ProfessionalSummary, 40))
	}
}

// WriteCard writes one stored card to w in the given format.
func WriteCard(w io.Writer, card *models.CardRecord, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, card)
	}
	switch card.Status {
	case models.CardNotFound:
		fmt.Fprintf(w, "Card %s not found\n", card.Identity)
		return nil
	case models.CardPartial:
		fmt.Fprintf(w, "Card %s is incomplete (slots %v); reindex or add it again\n", card.Identity, card.Slots)
	}

	var info *models.ExtractedInfo
	if card.Record != nil {
		info = &card.Record.ExtractedInfo
	}
	writeCardSummary(w, card.Identity, card.Metadata, info)
	if meta := card.Metadata; meta.Website != "" || meta.Industry != "" || meta.Seniority != "" {
		fmt.Fprintln(w)
		if meta.Website != "" {
			fmt.Fprintf(w, "Website: %s\n", meta.Website)
		}
		if meta.Industry != "" {
			fmt.Fprintf(w, "Industry: %s\n", meta.Industry)
		}
		if meta.Seniority != "" {
			fmt.Fprintf(w, "Seniority: %s\n", meta.Seniority)
		}
	}
	if len(card.Fragments) > 0 {
		fmt.Fprintln(w, "\nFragments:")
		for i, text := range card.Fragments {
			slot := i
			if i < len(card.Slots) {
				slot = card.Slots[i]
			}
			fmt.Fprintf(w, "  [%s] %s\n", models.SlotName(slot), utils.Truncate(text, 120))
		}
	}
	return nil
}

// WriteStats writes index statistics to w in the given format.
func WriteStats(w io.Writer, stats *models.IndexStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Cards:        %d\n", stats.Cards)
	fmt.Fprintf(w, "Fragments:    %d\n", stats.Fragments)
	fmt.Fprintf(w, "Vectors:      %d\n", stats.Vectors)
	fmt.Fprintf(w, "Keyword docs: %d\n", stats.KeywordDocs)
	if stats.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "Disk usage:   %s\n", FormatBytes(stats.DiskUsageBytes))
	}
	if stats.NeedsRebuild {
		fmt.Fprintln(w, "\nThe vector index is out of date; run `meishi reindex`.")
	}
	return nil
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
