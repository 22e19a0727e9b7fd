package stealth

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// inflate reads a single gzip member.
func inflate(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	zr.Multistream(false)

	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

// deflate compresses plain into a single gzip member.
func deflate(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(plain); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
