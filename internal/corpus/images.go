package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/apolo-agent/backend/pkg/logger"
)

// ImageRecord describes one image extracted from a document build. The
// catalog order is meaningful: the relevance rules address images by ordinal.
type ImageRecord struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	SizeBytes   int    `json:"size_bytes"`
	Description string `json:"description,omitempty"`
}

const imageCatalogFile = "images.json"

// ExtractedImage is a raw embedded resource pulled out of a document.
type ExtractedImage struct {
	Ext  string
	Data []byte
}

// displayable reports whether browsers render the format natively, meaning
// no conversion is needed before persisting.
func displayable(ext string) bool {
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp":
		return true
	}
	return false
}

// convertToPNG re-encodes formats we can decode. Legacy vector/metafile
// formats (wmf, emf) have no decoder here, so conversion fails and the
// caller persists the original bytes instead.
func convertToPNG(data []byte, ext string) ([]byte, error) {
	switch ext {
	case "bmp":
		decoded, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("bmp decode: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
		return buf.Bytes(), nil
	case "tif", "tiff":
		decoded, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("tiff decode: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
		return buf.Bytes(), nil
	case "gif":
		decoded, err := gif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gif decode: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, decoded); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("no decoder for %q", ext)
}

// WriteImages persists extracted images under dir with stable
// image_<ordinal>.<ext> names and returns the ordered catalog. Non-displayable
// formats are converted to PNG; when conversion fails the original bytes and
// raw extension are kept rather than dropping the asset. An unwritable image
// is skipped, the rest of the build continues.
func WriteImages(dir string, images []ExtractedImage) ([]ImageRecord, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir: %w", err)
	}

	var records []ImageRecord
	for i, img := range images {
		data := img.Data
		ext := img.Ext

		if !displayable(ext) {
			converted, err := convertToPNG(img.Data, img.Ext)
			if err != nil {
				logger.Warn("Image conversion failed, keeping original bytes",
					zap.String("ext", img.Ext),
					zap.Error(err),
				)
			} else {
				data = converted
				ext = "png"
			}
		}

		filename := fmt.Sprintf("image_%d.%s", i+1, ext)
		path := filepath.Join(dir, filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Warn("Failed to write image, skipping",
				zap.String("filename", filename),
				zap.Error(err),
			)
			continue
		}

		records = append(records, ImageRecord{
			Filename:    filename,
			StoragePath: path,
			SizeBytes:   len(data),
		})
	}

	if err := SaveImageCatalog(dir, records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveImageCatalog writes the ordered image catalog sidecar.
func SaveImageCatalog(dir string, records []ImageRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal image catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, imageCatalogFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write image catalog: %w", err)
	}
	return nil
}

// LoadImageCatalog reads the image catalog sidecar. A corpus built without
// images simply has no catalog file.
func LoadImageCatalog(dir string) ([]ImageRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, imageCatalogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read image catalog: %w", err)
	}
	var records []ImageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse image catalog: %w", err)
	}
	return records, nil
}
