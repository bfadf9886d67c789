package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageSink stores raw image bytes returned inline by a provider and
// returns the URL the article should reference.
type ImageSink interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
}

// FileImageSink writes images into a directory that is served under PublicBaseURL.
type FileImageSink struct {
	Dir           string
	PublicBaseURL string
}

// NewFileImageSink creates a sink rooted at dir
func NewFileImageSink(dir, publicBaseURL string) *FileImageSink {
	return &FileImageSink{Dir: dir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Save implements ImageSink
func (s *FileImageSink) Save(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	name := uuid.NewString() + "." + strings.TrimPrefix(ext, ".")
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return s.PublicBaseURL + "/" + name, nil
}

func decodeBase64Image(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return raw, nil
}
