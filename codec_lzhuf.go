// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"errors"
	"fmt"
	"io"
)

// LZHUF parameters: 4 KiB ring, matches of 3..60 bytes, adaptive Huffman over
// 314 symbols (256 literals plus match lengths).
const (
	lzhufN         = 4096
	lzhufF         = 60
	lzhufThreshold = 2
	lzhufNChar     = 256 - lzhufThreshold + lzhufF
	lzhufT         = lzhufNChar*2 - 1
	lzhufR         = lzhufT - 1
	lzhufMaxFreq   = 0x8000
	lzhufMask      = lzhufN - 1
)

// lzhufPosLen holds code lengths for the upper 6 bits of a match position.
var lzhufPosLen = [64]uint8{
	3, 4, 4, 4, 5, 5, 5, 5, 5, 5, 5, 5, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
}

// Position code tables derived from lzhufPosLen as canonical prefix codes.
var (
	lzhufPosCode   [64]uint8
	lzhufDecodePos [256]uint8
	lzhufDecodeLen [256]uint8
)

func init() {
	code := 0
	for i, l := range lzhufPosLen {
		lzhufPosCode[i] = uint8(code) //nolint:gosec // code < 256
		span := 1 << (8 - l)
		for j := code; j < code+span; j++ {
			lzhufDecodePos[j] = uint8(i) //nolint:gosec // i < 64
			lzhufDecodeLen[j] = l
		}

		code += span
	}
}

// LZHUF decodes LZSS with adaptive Huffman coding (the classic LHarc-era scheme).
// The stream has no end marker, so an exact output size is required.
type LZHUF struct{}

// Name implements Codec.
func (LZHUF) Name() string { return "lzhuf" }

// Kind implements Codec.
func (LZHUF) Kind() CodecKind { return CodecDecompress }

// NewReader implements Codec.
func (LZHUF) NewReader(src io.Reader, _, hint int64) (io.Reader, error) {
	if hint < 0 {
		return nil, fmt.Errorf("%w: negative lzhuf size", ErrCodecCorrupt)
	}

	d := &lzhufReader{in: NewStream(src), remaining: hint, r: lzhufN - lzhufF}
	d.tree.start()
	for i := 0; i < lzhufN-lzhufF; i++ {
		d.text[i] = ' '
	}

	return d, nil
}

// Encode implements Encoder.
func (LZHUF) Encode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}

	e := lzhufEncoder{src: src}
	e.tree.start()
	e.run()

	return e.bits.flush(), nil
}

// lzhufTree is the adaptive Huffman tree shared by encoder and decoder.
// Nodes are kept sorted by frequency; siblings sit at son[p] and son[p]+1.
type lzhufTree struct {
	freq [lzhufT + 1]uint32
	prnt [lzhufT + lzhufNChar]int
	son  [lzhufT]int
}

// start builds the initial balanced tree with all frequencies at one.
func (t *lzhufTree) start() {
	for i := 0; i < lzhufNChar; i++ {
		t.freq[i] = 1
		t.son[i] = i + lzhufT
		t.prnt[i+lzhufT] = i
	}

	i := 0
	for j := lzhufNChar; j <= lzhufR; j++ {
		t.freq[j] = t.freq[i] + t.freq[i+1]
		t.son[j] = i
		t.prnt[i] = j
		t.prnt[i+1] = j
		i += 2
	}

	t.freq[lzhufT] = 0xffff
	t.prnt[lzhufR] = 0
}

// reconst halves all leaf frequencies and rebuilds the tree.
func (t *lzhufTree) reconst() {
	j := 0
	for i := 0; i < lzhufT; i++ {
		if t.son[i] >= lzhufT {
			t.freq[j] = (t.freq[i] + 1) / 2
			t.son[j] = t.son[i]
			j++
		}
	}

	for i, j := 0, lzhufNChar; j < lzhufT; i, j = i+2, j+1 {
		f := t.freq[i] + t.freq[i+1]
		t.freq[j] = f

		k := j - 1
		for f < t.freq[k] {
			k--
		}
		k++

		copy(t.freq[k+1:j+1], t.freq[k:j])
		t.freq[k] = f
		copy(t.son[k+1:j+1], t.son[k:j])
		t.son[k] = i
	}

	for i := 0; i < lzhufT; i++ {
		k := t.son[i]
		t.prnt[k] = i
		if k < lzhufT {
			t.prnt[k+1] = i
		}
	}
}

// update increments the frequency of symbol c and restores ordering.
func (t *lzhufTree) update(c int) {
	if t.freq[lzhufR] == lzhufMaxFreq {
		t.reconst()
	}

	c = t.prnt[c+lzhufT]
	for {
		t.freq[c]++
		k := t.freq[c]

		l := c + 1
		if k > t.freq[l] {
			for k > t.freq[l+1] {
				l++
			}

			t.freq[c] = t.freq[l]
			t.freq[l] = k

			i := t.son[c]
			t.prnt[i] = l
			if i < lzhufT {
				t.prnt[i+1] = l
			}

			j := t.son[l]
			t.son[l] = i
			t.prnt[j] = c
			if j < lzhufT {
				t.prnt[j+1] = c
			}
			t.son[c] = j

			c = l
		}

		c = t.prnt[c]
		if c == 0 {
			return
		}
	}
}

// lzhufReader streams decoded bytes.
type lzhufReader struct {
	in   *Stream
	err  error
	tree lzhufTree
	text [lzhufN]byte

	remaining int64
	realBits  int64
	usedBits  int64
	r         int
	matchPos  int
	matchLeft int
	getbuf    uint16
	getlen    uint
}

// Read implements io.Reader.
func (d *lzhufReader) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}

	n := 0
	for n < len(p) && d.remaining > 0 {
		if d.matchLeft == 0 {
			c, err := d.decodeChar()
			if err != nil {
				d.err = err
				return n, err
			}

			if c < 256 {
				d.emit(byte(c), p, &n)
				continue
			}

			pos, err := d.decodePosition()
			if err != nil {
				d.err = err
				return n, err
			}

			d.matchPos = (d.r - pos - 1) & lzhufMask
			d.matchLeft = c - 255 + lzhufThreshold
		}

		b := d.text[d.matchPos]
		d.matchPos = (d.matchPos + 1) & lzhufMask
		d.matchLeft--
		d.emit(b, p, &n)
	}

	if d.remaining == 0 {
		d.err = io.EOF
		if n == 0 {
			return 0, io.EOF
		}
	}

	return n, nil
}

// emit writes one output byte and records it in the ring.
func (d *lzhufReader) emit(b byte, p []byte, n *int) {
	p[*n] = b
	*n++
	d.text[d.r] = b
	d.r = (d.r + 1) & lzhufMask
	d.remaining--
}

// decodeChar walks the tree from the root to one symbol.
func (d *lzhufReader) decodeChar() (int, error) {
	c := d.tree.son[lzhufR]
	for c < lzhufT {
		bit, err := d.getBit()
		if err != nil {
			return 0, err
		}

		c = d.tree.son[c+bit]
	}

	c -= lzhufT
	d.tree.update(c)

	return c, nil
}

// decodePosition reads a 6-bit prefix-coded upper part and 6 raw lower bits.
func (d *lzhufReader) decodePosition() (int, error) {
	i, err := d.getByte()
	if err != nil {
		return 0, err
	}

	c := int(lzhufDecodePos[i]) << 6
	for j := int(lzhufDecodeLen[i]) - 2; j > 0; j-- {
		bit, err := d.getBit()
		if err != nil {
			return 0, err
		}

		i = i<<1 + bit
	}

	return c | (i & 0x3f), nil
}

// getBit returns the next input bit.
func (d *lzhufReader) getBit() (int, error) {
	if err := d.refill(); err != nil {
		return 0, err
	}

	bit := int(d.getbuf >> 15)
	d.getbuf <<= 1
	d.getlen--

	return bit, d.consume(1)
}

// getByte returns the next 8 input bits.
func (d *lzhufReader) getByte() (int, error) {
	if err := d.refill(); err != nil {
		return 0, err
	}

	v := int(d.getbuf >> 8)
	d.getbuf <<= 8
	d.getlen -= 8

	return v, d.consume(8)
}

// refill keeps more than 8 bits buffered, padding with zeros past the end.
func (d *lzhufReader) refill() error {
	for d.getlen <= 8 {
		b, err := d.in.Next()
		switch {
		case err == nil:
			d.realBits += 8
		case errors.Is(err, io.EOF):
			b = 0
		default:
			return classifyCodecError(err)
		}

		d.getbuf |= uint16(b) << (8 - d.getlen)
		d.getlen += 8
	}

	return nil
}

// consume accounts used bits and fails once padding would be decoded.
func (d *lzhufReader) consume(n int64) error {
	d.usedBits += n
	if d.usedBits > d.realBits {
		return fmt.Errorf("%w: lzhuf input ended with %d bytes left", ErrCodecTruncated, d.remaining)
	}

	return nil
}

// lzhufEncoder produces a stream the reader decodes; it only references
// already emitted data, never the space-filled initial ring.
type lzhufEncoder struct {
	src  []byte
	bits bitWriter
	tree lzhufTree
}

// lzhufHashBits sizes the match finder head table.
const lzhufHashBits = 13

// run encodes src greedily using hash chains over 3-byte prefixes.
func (e *lzhufEncoder) run() {
	var head [1 << lzhufHashBits]int32
	for i := range head {
		head[i] = -1
	}

	prev := make([]int32, len(e.src))
	insert := func(i int) {
		if i+2 >= len(e.src) {
			return
		}

		h := lzhufHash(e.src[i:])
		prev[i] = head[h]
		head[h] = int32(i) //nolint:gosec // bounded by container size
	}

	maxDist := lzhufN - lzhufF
	for t := 0; t < len(e.src); {
		bestLen, bestDist := 0, 0
		if len(e.src)-t > lzhufThreshold {
			limit := min(lzhufF, len(e.src)-t)
			cand := head[lzhufHash(e.src[t:])]
			for steps := 0; cand >= 0 && steps < 256; steps++ {
				dist := t - int(cand)
				if dist > maxDist {
					break
				}

				l := 0
				for l < limit && e.src[int(cand)+l] == e.src[t+l] {
					l++
				}
				if l > bestLen {
					bestLen, bestDist = l, dist
					if l == limit {
						break
					}
				}

				cand = prev[cand]
			}
		}

		if bestLen > lzhufThreshold {
			e.encodeChar(bestLen + 255 - lzhufThreshold)
			e.encodePosition(bestDist - 1)
			for i := t; i < t+bestLen; i++ {
				insert(i)
			}
			t += bestLen

			continue
		}

		e.encodeChar(int(e.src[t]))
		insert(t)
		t++
	}
}

// encodeChar emits the current code of symbol c, root bit first.
func (e *lzhufEncoder) encodeChar(c int) {
	var path []uint8
	for k := e.tree.prnt[c+lzhufT]; k != lzhufR; {
		p := e.tree.prnt[k]
		path = append(path, uint8(k-e.tree.son[p])) //nolint:gosec // 0 or 1
		k = p
	}

	for i := len(path) - 1; i >= 0; i-- {
		e.bits.writeBit(path[i])
	}

	e.tree.update(c)
}

// encodePosition emits the prefix code of pos>>6 and 6 raw low bits.
func (e *lzhufEncoder) encodePosition(pos int) {
	i := pos >> 6
	l := uint(lzhufPosLen[i])
	e.bits.writeBits(uint32(lzhufPosCode[i])>>(8-l), l)
	e.bits.writeBits(uint32(pos&0x3f), 6) //nolint:gosec // 6 bits
}

// lzhufHash hashes the first 3 bytes of b.
func lzhufHash(b []byte) uint32 {
	v := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return (v * 2654435761) >> (32 - lzhufHashBits)
}

// bitWriter packs bits MSB first.
type bitWriter struct {
	out []byte
	cur byte
	n   uint
}

// writeBit appends one bit.
func (w *bitWriter) writeBit(b uint8) {
	w.cur = w.cur<<1 | b&1
	w.n++
	if w.n == 8 {
		w.out = append(w.out, w.cur)
		w.cur = 0
		w.n = 0
	}
}

// writeBits appends the low n bits of v, most significant first.
func (w *bitWriter) writeBits(v uint32, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		w.writeBit(uint8(v>>uint(i)) & 1) //nolint:gosec // single bit
	}
}

// flush pads the last byte with zero bits and returns the output.
func (w *bitWriter) flush() []byte {
	if w.n > 0 {
		w.out = append(w.out, w.cur<<(8-w.n))
		w.cur = 0
		w.n = 0
	}

	return w.out
}
