package file

import (
	"context"
	"io"
	"os"
)

// Local reads a file from the local filesystem.
type Local struct {
	path string
}

func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the file. The context is accepted for interface parity; local
// reads are not cancelable mid-call.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(l.path)
}

func (l *Local) Name() string { return l.path }
