package stealth

import "strings"

// ScrubMode selects what a Decoder does to the alpha of every pixel it has
// scanned. Decoding leaves R, G and B untouched.
type ScrubMode uint8

const (
	// ScrubLSB clears the alpha LSB.
	ScrubLSB ScrubMode = iota
	// ScrubAlpha sets alpha to 0.
	ScrubAlpha
	// ScrubNone leaves the picture as it was.
	ScrubNone
)

// ParametersKey is the container text entry that takes priority over any
// hidden payload.
const ParametersKey = "parameters"

// Decoder recovers hidden payloads. The zero value only clears the alpha
// LSBs it scanned, which keeps the picture visible. Set Scrub to ScrubAlpha
// to zero the alpha of scanned pixels instead.
type Decoder struct {
	Scrub ScrubMode
}

var defaultDecoder Decoder

// Read returns the payload of p using the zero Decoder.
func Read(p *Picture) Payload { return defaultDecoder.Read(p) }

// Decode scans p using the zero Decoder.
func Decode(p *Picture) Payload { return defaultDecoder.Decode(p) }

// Read returns the container's parameters entry verbatim when there is one,
// and scans the pixels otherwise.
func (d Decoder) Read(p *Picture) Payload {
	if v, ok := p.Text.Lookup(ParametersKey); ok {
		return textPayload(v)
	}
	return d.Decode(p)
}

// Decode scans the pixels of p for a frame. An image without a frame yields
// an empty Payload. Every scanned pixel is scrubbed according to d.Scrub
// when p has alpha.
func (d Decoder) Decode(p *Picture) Payload {
	w, h := p.Size()
	s := scanner{hasAlpha: p.Alpha}
	for x, y := range columnMajor(w, h) {
		off := p.offset(x, y)
		px := p.Pix.Pix[off : off+4 : off+4]
		more := s.step(px)
		if p.Alpha {
			switch d.Scrub {
			case ScrubLSB:
				px[3] &^= 1
			case ScrubAlpha:
				px[3] = 0
			}
		}
		if !more {
			break
		}
	}
	if s.state != done || len(s.data) == 0 {
		return Payload{}
	}
	return finish(s.data.bytes(), s.sig.Compressed())
}

// finish turns recovered bytes into a Payload. A compressed body that does
// not inflate is read as it is. Invalid UTF-8 is dropped.
func finish(raw []byte, compressed bool) Payload {
	if compressed {
		if out, err := inflate(raw); err == nil {
			raw = out
		}
	}
	return promote(strings.ToValidUTF8(string(raw), ""))
}

type scanState uint8

const (
	confirmingSignature scanState = iota
	readingParamLength
	readingParam
	done
)

// scanner is the decode state machine. It is fed one pixel at a time in
// wire order.
type scanner struct {
	hasAlpha bool
	state    scanState

	// alpha and rgb both fill up while the signature is unknown.
	alpha, rgb  bitString
	rgbRejected bool

	sig      Signature
	paramLen int
	data     bitString
}

// active returns the buffer of the confirmed channel.
func (s *scanner) active() *bitString {
	if s.sig.Channel() == ChannelRGB {
		return &s.rgb
	}
	return &s.alpha
}

// wants reports whether bits of channel c are still being collected.
func (s *scanner) wants(c Channel) bool {
	if s.state != confirmingSignature {
		return s.sig.Channel() == c
	}
	if c == ChannelAlpha {
		return s.hasAlpha
	}
	return !s.rgbRejected
}

// step consumes px (R, G, B, A) and reports whether more pixels are needed.
func (s *scanner) step(px []uint8) bool {
	if s.wants(ChannelAlpha) {
		s.alpha = append(s.alpha, px[3]&1)
	}
	if s.wants(ChannelRGB) {
		s.rgb = append(s.rgb, px[0]&1, px[1]&1, px[2]&1)
	}

	switch s.state {
	case confirmingSignature:
		return s.confirm()
	case readingParamLength:
		buf := s.active()
		if s.sig.Channel() == ChannelAlpha {
			if len(*buf) == lenBits {
				s.paramLen = int(buf.uint32())
				*buf = (*buf)[:0]
				s.state = readingParam
			}
			return true
		}
		// Three bits arrive per pixel, so the length ends inside a pixel.
		// The 33rd bit already belongs to the payload.
		if len(*buf) == lenBits+1 {
			carry := (*buf)[lenBits]
			s.paramLen = int((*buf)[:lenBits].uint32())
			*buf = append((*buf)[:0], carry)
			s.state = readingParam
		}
		return true
	case readingParam:
		buf := *s.active()
		if s.sig.Channel() == ChannelAlpha {
			if len(buf) == s.paramLen {
				s.data = buf
				s.state = done
				return false
			}
			return true
		}
		if len(buf) >= s.paramLen {
			s.data = buf[:s.paramLen]
			s.state = done
			return false
		}
		return true
	}
	return false
}

// confirm checks whichever signature buffer just became full.
func (s *scanner) confirm() bool {
	if s.hasAlpha && len(s.alpha) == sigBits {
		sig, ok := matchSignature(s.alpha.bytes(), ChannelAlpha)
		if !ok {
			return false
		}
		s.lock(sig)
		return true
	}
	if !s.rgbRejected && len(s.rgb) == sigBits {
		if sig, ok := matchSignature(s.rgb.bytes(), ChannelRGB); ok {
			s.lock(sig)
			return true
		}
		s.rgb = nil
		s.rgbRejected = true
		return s.hasAlpha
	}
	return true
}

// lock fixes the channel and compression for the rest of the scan.
func (s *scanner) lock(sig Signature) {
	s.sig = sig
	s.alpha, s.rgb = s.alpha[:0], s.rgb[:0]
	s.state = readingParamLength
}
