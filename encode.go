package stealth

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrNoPayload is returned when the picture has no text to embed.
	ErrNoPayload = errors.New("stealth: no payload available")
	// ErrTooLarge is returned when a frame does not fit in the picture.
	ErrTooLarge = errors.New("stealth: payload does not fit in image")
)

// PayloadFor picks the text to embed from container metadata: a non-empty
// parameters entry, or all of text as a JSON object when both a prompt and a
// workflow entry are present.
func PayloadFor(text Metadata) (string, error) {
	if v := text.Get(ParametersKey); v != "" {
		return v, nil
	}
	_, hasPrompt := text.Lookup("prompt")
	_, hasWorkflow := text.Lookup("workflow")
	if !hasPrompt || !hasWorkflow {
		return "", ErrNoPayload
	}
	b, err := text.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Encode embeds the payload chosen by PayloadFor from p.Text into p.
func Encode(p *Picture) error {
	payload, err := PayloadFor(p.Text)
	if err != nil {
		return err
	}
	return Embed(p, payload)
}

// Embed writes payload into the alpha LSBs of p under stealth_pnginfo.
// Every pixel is made fully opaque first, so existing transparency is lost.
// Slots after the frame keep alpha 255.
func Embed(p *Picture, payload string) error {
	return EmbedFrame(p, SigPNGInfo, []byte(payload))
}

// EmbedFrame writes payload under sig, gzip compressing it first when sig
// is a compressed signature. Alpha signatures make p opaque before writing.
func EmbedFrame(p *Picture, sig Signature, payload []byte) error {
	if sig.Compressed() {
		body, err := deflate(payload)
		if err != nil {
			return err
		}
		payload = body
	}
	return writeFrame(p, sig, payload)
}

// writeFrame lays sig, the bit length of body and body onto the slots of
// sig's channel.
func writeFrame(p *Picture, sig Signature, body []byte) error {
	if !sig.Valid() {
		return errors.New("stealth: unknown signature " + string(sig))
	}
	if uint64(len(body))*8 > math.MaxUint32 {
		return ErrTooLarge
	}
	frame := make([]byte, 0, len(sig)+4+len(body))
	frame = append(frame, sig...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(body)*8))
	frame = append(frame, body...)

	c := sig.Channel()
	w, h := p.Size()
	if len(frame)*8 > w*h*c.bitsPerPixel() {
		return ErrTooLarge
	}

	if c == ChannelAlpha {
		for x, y := range columnMajor(w, h) {
			p.Pix.Pix[p.offset(x, y)+3] = 0xff
		}
		p.Alpha = true
	}

	bits := bitString(nil).appendBytes(frame)
	i := 0
	for off := range slots(p, c) {
		if i == len(bits) {
			break
		}
		p.Pix.Pix[off] = p.Pix.Pix[off]&^1 | bits[i]
		i++
	}
	return nil
}
