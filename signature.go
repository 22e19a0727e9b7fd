package stealth

// Signature is the ASCII tag at the start of every frame. It selects the
// channel path and whether the payload is gzip compressed.
type Signature string

const (
	SigPNGInfo Signature = "stealth_pnginfo"
	SigPNGComp Signature = "stealth_pngcomp"
	SigRGBInfo Signature = "stealth_rgbinfo"
	SigRGBComp Signature = "stealth_rgbcomp"
)

// sigBits is the length of every signature in bits.
const sigBits = 15 * 8

// lenBits is the width of the payload length field.
const lenBits = 32

// Channel is the physical path a frame is carried on.
type Channel uint8

const (
	// ChannelAlpha uses one bit per pixel, the alpha LSB.
	ChannelAlpha Channel = iota
	// ChannelRGB uses three bits per pixel: R, G then B LSB.
	ChannelRGB
)

// bitsPerPixel is the number of slots a pixel offers on c.
func (c Channel) bitsPerPixel() int {
	if c == ChannelRGB {
		return 3
	}
	return 1
}

// Channel returns the path s is carried on.
func (s Signature) Channel() Channel {
	if s == SigRGBInfo || s == SigRGBComp {
		return ChannelRGB
	}
	return ChannelAlpha
}

// Compressed reports whether the payload under s is a gzip member.
func (s Signature) Compressed() bool {
	return s == SigPNGComp || s == SigRGBComp
}

// Valid reports whether s is one of the known signatures.
func (s Signature) Valid() bool {
	switch s {
	case SigPNGInfo, SigPNGComp, SigRGBInfo, SigRGBComp:
		return true
	}
	return false
}

// matchSignature checks raw against the two signatures allowed on c.
func matchSignature(raw []byte, c Channel) (Signature, bool) {
	s := Signature(raw)
	if s.Valid() && s.Channel() == c {
		return s, true
	}
	return "", false
}
