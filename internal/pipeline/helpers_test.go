package pipeline

import (
	"bytes"
	"io"
)

// bytesReader returns a reader that yields b and then repeats it forever,
// so minted thread IDs are predictable.
func bytesReader(b ...byte) io.Reader {
	return &repeatReader{pattern: b}
}

type repeatReader struct {
	pattern []byte
	buf     bytes.Buffer
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for r.buf.Len() < len(p) {
		r.buf.Write(r.pattern)
	}
	return r.buf.Read(p)
}
