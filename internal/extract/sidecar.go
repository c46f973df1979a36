package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/hyperjump/meishi/internal/loader"
	"github.com/hyperjump/meishi/internal/models"
)

// SidecarExtractor reads previously extracted fields from "<image path>.json" next to
// a local image. It makes indexing work offline and in tests.
type SidecarExtractor struct{}

// NewSidecarExtractor returns a SidecarExtractor.
func NewSidecarExtractor() *SidecarExtractor {
	return &SidecarExtractor{}
}

// SidecarPath returns the sidecar file path for an image path.
func SidecarPath(imagePath string) string {
	return imagePath + ".json"
}

// Extract reads the sidecar of img.Source. The sidecar holds either bare extracted
// fields or a full record with an "extracted_info" key.
func (e *SidecarExtractor) Extract(ctx context.Context, img *loader.Image) (*models.ExtractedInfo, error) {
	if loader.IsRemote(img.Source) {
		return nil, fmt.Errorf("sidecar extraction needs a local image, got %s", img.Source)
	}
	data, err := os.ReadFile(SidecarPath(img.Source))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no sidecar for %s", img.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	text := StripFences(string(data))
	if strings.Contains(text, `"extracted_info"`) {
		var rec models.Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparsable, err)
		}
		return &rec.ExtractedInfo, nil
	}
	return ParseResponse(text)
}
