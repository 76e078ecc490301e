package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	bytesAfterPrefix int
}

// Write writes len(p) bytes from p to the underlying data stream and returns
// back the number of bytes written. The PrefixWriter keeps track of the
// beginning of new lines and injects the configured prefix at each new line.
// The injected prefix is not included in the number of written bytes returned
// by this method.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	if w.bytesAfterPrefix == 0 && len(p) != 0 {
		w.Sink.Write(w.Prefix)
	}

	for len(p) != 0 {
		nlIndex := bytes.IndexByte(p, '\n')
		if nlIndex == -1 {
			n, err := w.Sink.Write(p)
			written += n
			w.bytesAfterPrefix += n
			return written, err
		}

		n, err := w.Sink.Write(p[:nlIndex+1])
		written += n
		if err != nil {
			return written, err
		}

		w.bytesAfterPrefix = 0
		p = p[nlIndex+1:]
		if len(p) != 0 {
			w.Sink.Write(w.Prefix)
		}
	}

	return written, nil
}
