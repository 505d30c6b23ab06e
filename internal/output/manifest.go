package output

import (
	"encoding/json"
	"os"
	"time"
)

// ManifestEntry represents one written camera image.
type ManifestEntry struct {
	Camera string `json:"camera"`
	Frame  uint64 `json:"frame"`
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Manifest describes the content of an output directory.
type Manifest struct {
	Project     string          `json:"project"`
	Written     time.Time       `json:"written"`
	BlendingMap string          `json:"blending_map,omitempty"`
	Images      []ManifestEntry `json:"images"`
}

// WriteManifest writes m as indented JSON at path.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
