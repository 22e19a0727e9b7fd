package stealth

import "iter"

// columnMajor yields every pixel of a w×h grid with x in the outer loop and
// y in the inner loop. This order is part of the wire format.
func columnMajor(w, h int) iter.Seq2[int, int] {
	return func(yield func(x, y int) bool) {
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				if !yield(x, y) {
					return
				}
			}
		}
	}
}

// slots yields the byte offsets into p.Pix of every bit slot on channel c,
// in wire order.
func slots(p *Picture, c Channel) iter.Seq[int] {
	w, h := p.Size()
	return func(yield func(int) bool) {
		for x, y := range columnMajor(w, h) {
			off := p.offset(x, y)
			if c == ChannelAlpha {
				if !yield(off + 3) {
					return
				}
				continue
			}
			for ch := 0; ch < 3; ch++ {
				if !yield(off + ch) {
					return
				}
			}
		}
	}
}

// bitString holds one bit per element, most significant first.
type bitString []uint8

// appendBytes appends every bit of data, msb-first within each byte.
func (b bitString) appendBytes(data []byte) bitString {
	for _, v := range data {
		for i := 7; i >= 0; i-- {
			b = append(b, v>>uint(i)&1)
		}
	}
	return b
}

// bytes groups b into bytes of 8 bits. A trailing group shorter than 8 bits
// keeps its value right aligned.
func (b bitString) bytes() []byte {
	out := make([]byte, 0, (len(b)+7)/8)
	for i := 0; i < len(b); i += 8 {
		var v byte
		for _, bit := range b[i:min(i+8, len(b))] {
			v = v<<1 | bit
		}
		out = append(out, v)
	}
	return out
}

// uint32 reads b as a big-endian unsigned integer.
func (b bitString) uint32() uint32 {
	var v uint32
	for _, bit := range b {
		v = v<<1 | uint32(bit)
	}
	return v
}
