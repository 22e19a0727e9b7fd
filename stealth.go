// Package stealth hides generation metadata in the least significant bits of
// an image's pixel channels and recovers it again.
//
// A frame is a 15 byte ASCII signature, a 32 bit big-endian count of payload
// bits and the payload itself. Signatures ending in "info" carry plain UTF-8,
// signatures ending in "comp" carry a gzip member. The "png" signatures live
// in the alpha channel LSBs, the "rgb" signatures in the R, G and B LSBs
// taken together. Pixels are visited with x in the outer loop and y in the
// inner loop.
//
// The encoder only writes stealth_pnginfo. The result must be stored in a
// lossless format that keeps the alpha channel; anything else silently
// destroys the payload.
package stealth

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/draw"
	"io"
	"strings"
)

// Entry is a single key/value pair of textual metadata.
type Entry struct {
	Key   string
	Value string
}

// Metadata is an ordered set of textual key/value pairs, such as the text
// chunks of a PNG file. Keys are unique; Set replaces in place.
type Metadata []Entry

// Lookup returns the value stored under key.
func (m Metadata) Lookup(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Get returns the value stored under key or "".
func (m Metadata) Get(key string) string {
	v, _ := m.Lookup(key)
	return v
}

// Set stores value under key, keeping the position of an existing entry.
func (m *Metadata) Set(key, value string) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Entry{Key: key, Value: value})
}

// MarshalJSON encodes m as a JSON object in insertion order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(e.Key); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		if err := enc.Encode(e.Value); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into m, keeping key order. String
// values are unquoted; any other value keeps its raw JSON text.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errNotObject
	}

	var out Metadata
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out.Set(key, s)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errNotObject
	}
	*m = out
	return nil
}

var errNotObject = errors.New("stealth: metadata is not a JSON object")

// Kind tells which field of a Payload is meaningful.
type Kind uint8

const (
	// KindEmpty means no payload was found.
	KindEmpty Kind = iota
	// KindText means the payload is plain text.
	KindText
	// KindFields means the payload was a JSON object.
	KindFields
)

// Payload is the result of reading an image.
type Payload struct {
	Kind   Kind
	Text   string
	Fields Metadata
}

// IsEmpty reports whether nothing was recovered.
func (p Payload) IsEmpty() bool { return p.Kind == KindEmpty }

// String renders the payload as text. Fields become "key:\nvalue" blocks
// separated by blank lines.
func (p Payload) String() string {
	switch p.Kind {
	case KindText:
		return p.Text
	case KindFields:
		blocks := make([]string, len(p.Fields))
		for i, e := range p.Fields {
			blocks[i] = e.Key + ":\n" + e.Value
		}
		return strings.Join(blocks, "\n\n")
	}
	return ""
}

// textPayload wraps s without any interpretation.
func textPayload(s string) Payload {
	if s == "" {
		return Payload{}
	}
	return Payload{Kind: KindText, Text: s}
}

// promote turns text that is a JSON object into Fields.
func promote(s string) Payload {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		var m Metadata
		if err := m.UnmarshalJSON([]byte(s)); err == nil {
			return Payload{Kind: KindFields, Fields: m}
		}
	}
	return textPayload(s)
}

// Picture is a mutable 8 bit pixel grid together with the textual metadata
// of the container it came from. A Picture must not be used by two
// goroutines at once; decoding writes to it.
type Picture struct {
	Pix *image.NRGBA
	// Alpha reports whether the source image carried an alpha channel.
	Alpha bool
	Text  Metadata
}

// NewPicture copies img into a Picture with bounds starting at (0,0).
func NewPicture(img image.Image, text Metadata) *Picture {
	return &Picture{Pix: toNRGBA(img), Alpha: hasAlpha(img), Text: text}
}

// Size returns the width and height of p.
func (p *Picture) Size() (w, h int) {
	b := p.Pix.Rect
	return b.Dx(), b.Dy()
}

// offset returns the index of pixel (x, y), counted from the top left
// corner of p, into p.Pix.Pix.
func (p *Picture) offset(x, y int) int {
	return p.Pix.PixOffset(p.Pix.Rect.Min.X+x, p.Pix.Rect.Min.Y+y)
}

// toNRGBA copies any image.Image into an *image.NRGBA with bounds starting
// at (0,0). NRGBA sources are copied row by row so that colour values under
// partial transparency survive unchanged.
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			i := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], n.Pix[i:i+4*b.Dx()])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA, *image.Alpha, *image.Alpha16:
		return true
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case interface{ Opaque() bool }:
		return !m.Opaque()
	}
	return true
}
