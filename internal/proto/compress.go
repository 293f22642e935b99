package proto

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// newEncoder returns a zstd stream encoder writing to w at level 1
// (SpeedFastest) with single-threaded encoding.
func newEncoder(w io.Writer) (*zstd.Encoder, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc, nil
}

// newDecoder returns a zstd stream decoder reading from r. Concurrency 1
// decodes synchronously on the caller's goroutine, so the decoder never
// reads ahead of what the session asks for.
func newDecoder(r io.Reader) (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(r,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxWindow(32<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return dec, nil
}
