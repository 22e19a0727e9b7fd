package stealth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
)

// From https://www.w3.org/TR/png/#5PNG-file-signature
const pngMagic = "\x89PNG\r\n\x1a\n"

var (
	// ErrNotPNG is returned for data that does not start with the PNG signature.
	ErrNotPNG = errors.New("stealth: not a PNG stream")
	// ErrChunk is returned for truncated or corrupt PNG chunks.
	ErrChunk = errors.New("stealth: malformed PNG chunk")
)

// chunk is a PNG chunk without its length and checksum.
type chunk struct {
	typ  string
	data []byte
}

func isTextChunk(typ string) bool {
	return typ == "tEXt" || typ == "zTXt" || typ == "iTXt"
}

// readChunks splits a PNG datastream into chunks up to and including IEND.
func readChunks(b []byte) ([]chunk, error) {
	if !bytes.HasPrefix(b, []byte(pngMagic)) {
		return nil, ErrNotPNG
	}
	b = b[len(pngMagic):]

	var chunks []chunk
	for len(b) > 0 {
		if len(b) < 12 {
			return nil, fmt.Errorf("%w: truncated chunk header", ErrChunk)
		}
		n := binary.BigEndian.Uint32(b[:4])
		if uint64(n) > uint64(len(b)-12) {
			return nil, fmt.Errorf("%w: %q overruns the stream", ErrChunk, b[4:8])
		}
		typ := string(b[4:8])
		sum := binary.BigEndian.Uint32(b[8+n : 12+n])
		if crc32.ChecksumIEEE(b[4:8+n]) != sum {
			return nil, fmt.Errorf("%w: bad checksum in %s", ErrChunk, typ)
		}
		chunks = append(chunks, chunk{typ: typ, data: b[8 : 8+n]})
		b = b[12+n:]
		if typ == "IEND" {
			break
		}
	}
	return chunks, nil
}

func appendChunk(dst []byte, c chunk) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(c.data)))
	start := len(dst)
	dst = append(dst, c.typ...)
	dst = append(dst, c.data...)
	return binary.BigEndian.AppendUint32(dst, crc32.ChecksumIEEE(dst[start:]))
}

// pngAlpha reports whether the IHDR colour type carries an alpha channel.
// ok is false for palette images and streams without IHDR.
func pngAlpha(chunks []chunk) (alpha, ok bool) {
	if len(chunks) == 0 || chunks[0].typ != "IHDR" || len(chunks[0].data) < 13 {
		return false, false
	}
	switch chunks[0].data[9] {
	case 3:
		return false, false
	case 4, 6:
		return true, true
	}
	return false, true
}

// ReadText returns the tEXt, zTXt and iTXt entries of a PNG datastream in
// file order.
func ReadText(b []byte) (Metadata, error) {
	chunks, err := readChunks(b)
	if err != nil {
		return nil, err
	}
	return textOf(chunks)
}

func textOf(chunks []chunk) (Metadata, error) {
	var text Metadata
	for _, c := range chunks {
		if !isTextChunk(c.typ) {
			continue
		}
		key, value, err := parseText(c)
		if err != nil {
			return nil, err
		}
		text.Set(key, value)
	}
	return text, nil
}

func parseText(c chunk) (key, value string, err error) {
	k, rest, ok := bytes.Cut(c.data, []byte{0})
	if !ok || len(k) == 0 {
		return "", "", fmt.Errorf("%w: %s without keyword", ErrChunk, c.typ)
	}
	key = fromLatin1(k)

	switch c.typ {
	case "tEXt":
		return key, fromLatin1(rest), nil
	case "zTXt":
		if len(rest) < 1 || rest[0] != 0 {
			return "", "", fmt.Errorf("%w: zTXt %q has unknown compression", ErrChunk, key)
		}
		plain, err := zinflate(rest[1:])
		if err != nil {
			return "", "", fmt.Errorf("%w: zTXt %q: %v", ErrChunk, key, err)
		}
		return key, fromLatin1(plain), nil
	}

	// iTXt: flag, method, language\0, translated keyword\0, text.
	if len(rest) < 2 {
		return "", "", fmt.Errorf("%w: short iTXt %q", ErrChunk, key)
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); ok {
		_, rest, ok = bytes.Cut(rest, []byte{0})
	}
	if !ok {
		return "", "", fmt.Errorf("%w: short iTXt %q", ErrChunk, key)
	}
	if compressed {
		plain, err := zinflate(rest)
		if err != nil {
			return "", "", fmt.Errorf("%w: iTXt %q: %v", ErrChunk, key, err)
		}
		rest = plain
	}
	return key, string(rest), nil
}

// textChunk picks tEXt when key and value fit Latin-1 and iTXt otherwise.
func textChunk(key, value string) (chunk, error) {
	k, ok := toLatin1(key)
	if !ok || len(k) == 0 || len(k) > 79 || bytes.IndexByte(k, 0) >= 0 {
		return chunk{}, fmt.Errorf("%w: invalid keyword %q", ErrChunk, key)
	}
	if v, ok := toLatin1(value); ok && bytes.IndexByte(v, 0) < 0 {
		data := append(append(k, 0), v...)
		return chunk{typ: "tEXt", data: data}, nil
	}
	data := append(k, 0, 0, 0, 0, 0)
	data = append(data, value...)
	return chunk{typ: "iTXt", data: data}, nil
}

// WriteText replaces every text chunk of a PNG datastream with text. The new
// chunks follow IHDR.
func WriteText(b []byte, text Metadata) ([]byte, error) {
	chunks, err := readChunks(b)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(b))
	out = append(out, pngMagic...)
	for _, c := range chunks {
		if isTextChunk(c.typ) {
			continue
		}
		out = appendChunk(out, c)
		if c.typ != "IHDR" {
			continue
		}
		for _, e := range text {
			tc, err := textChunk(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			out = appendChunk(out, tc)
		}
	}
	return out, nil
}

func zinflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func fromLatin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func toLatin1(s string) ([]byte, bool) {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return nil, false
		}
		b = append(b, byte(r))
	}
	return b, true
}
