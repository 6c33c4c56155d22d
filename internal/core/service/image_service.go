package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/rl1809/storeflow/internal/logger"
	"github.com/rl1809/storeflow/internal/port"
)

var dataURLPattern = regexp.MustCompile(`^data:(image/[a-z]+);base64,(.+)$`)

// ImageStudio edits product photos through a remote image model.
type ImageStudio struct {
	editor port.ImageEditor
}

// NewImageStudio accepts a nil editor; every edit then fails with ErrImageEditorUnavailable.
func NewImageStudio(editor port.ImageEditor) *ImageStudio {
	return &ImageStudio{editor: editor}
}

func (s *ImageStudio) Available() bool {
	return s.editor != nil
}

// EditImage applies instruction to a base64 data URL image and returns the
// edited image as a PNG data URL, usable directly as a product image URL.
func (s *ImageStudio) EditImage(ctx context.Context, source, instruction string) (string, error) {
	source = strings.TrimSpace(source)
	instruction = strings.TrimSpace(instruction)
	if source == "" || instruction == "" {
		return "", ErrImageRequest
	}
	if s.editor == nil {
		return "", ErrImageEditorUnavailable
	}

	m := dataURLPattern.FindStringSubmatch(source)
	if m == nil {
		return "", ErrInvalidImage
	}
	raw, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	out, err := s.editor.EditImage(ctx, raw, m[1], instruction)
	if err != nil {
		logger.Logger.Error().Err(err).Str("mime_type", m[1]).Msg("image edit failed")
		return "", fmt.Errorf("edit image: %w", err)
	}

	logger.Logger.Info().Int("source_bytes", len(raw)).Int("result_bytes", len(out)).Msg("image edited")
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(out), nil
}
