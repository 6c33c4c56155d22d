package port

import "context"

type FileAccess interface {
	// Supported reports whether live file handles can be granted at all
	Supported() bool

	// Open grants a handle to an existing workbook file
	Open(ctx context.Context, path string) (FileHandle, error)
}

type FileHandle interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the file contents
	Write(ctx context.Context, data []byte) error
}
