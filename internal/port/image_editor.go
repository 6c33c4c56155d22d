package port

import "context"

type ImageEditor interface {
	// EditImage applies a free-text instruction to an image and returns PNG bytes
	EditImage(ctx context.Context, image []byte, mimeType, instruction string) ([]byte, error)
}
