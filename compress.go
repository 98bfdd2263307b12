package smallbin

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// compressBytes runs data through a gzip stream and returns the
// compressed bytes. The output can be larger than the input for
// incompressible payloads; the store does not second-guess that.
func compressBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	return buf.Bytes(), nil
}

// decompressBytes reverses compressBytes. Input that is not a valid
// gzip stream is a CorruptionError.
func decompressBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &CorruptionError{Message: "corrupt compressed stream", Err: err}
	}

	out, err := io.ReadAll(zr)
	if err != nil {
		zr.Close()
		return nil, &CorruptionError{Message: "corrupt compressed stream", Err: err}
	}
	if err := zr.Close(); err != nil {
		return nil, &CorruptionError{Message: "corrupt compressed stream", Err: err}
	}
	return out, nil
}
