package stealth

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/xfmoulet/qoi"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load decodes an image and, for PNG, its text chunks. It returns the
// picture and the format name reported by image.Decode.
func Load(data []byte) (*Picture, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	p := NewPicture(img, nil)
	if format != "png" {
		return p, format, nil
	}

	chunks, err := readChunks(data)
	if err != nil {
		return nil, "", err
	}
	if p.Text, err = textOf(chunks); err != nil {
		return nil, "", err
	}
	if alpha, ok := pngAlpha(chunks); ok {
		p.Alpha = alpha
	}
	return p, format, nil
}

// EncodePNG writes p as PNG with p.Text as text chunks.
func (p *Picture) EncodePNG(w io.Writer) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, p.Pix); err != nil {
		return err
	}
	data := buf.Bytes()
	if len(p.Text) > 0 {
		var err error
		if data, err = WriteText(data, p.Text); err != nil {
			return fmt.Errorf("png text: %w", err)
		}
	}
	_, err := w.Write(data)
	return err
}

// EncodeQOI writes p as QOI. QOI keeps alpha losslessly but has no place
// for text metadata.
func (p *Picture) EncodeQOI(w io.Writer) error {
	return qoi.Encode(w, p.Pix)
}
