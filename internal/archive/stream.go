package archive

import (
	"context"
	"io"
)

// Stream returns a reader producing the packed tree. Packing runs in a goroutine
// and any error surfaces from Read. Closing the reader early stops the packer.
func Stream(ctx context.Context, codec Codec, srcDir string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(codec.Pack(ctx, srcDir, pw))
	}()
	return pr
}
