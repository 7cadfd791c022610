// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// payloadOf returns compressible bytes with some variation.
func payloadOf(n int) []byte {
	out := make([]byte, n)
	seed := uint32(2166136261)
	for i := range out {
		if i%64 < 48 {
			out[i] = byte('a' + i%26)
			continue
		}
		seed = seed*16777619 ^ uint32(i)
		out[i] = byte(seed >> 24)
	}

	return out
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codecs := []Codec{
		Stored{},
		XORByte{Key: 0x5a},
		XORKey{Key: []byte("secret"), Phase: 3, Origin: 1000},
		Blowfish{Key: []byte("blowfish")},
		Inflate{},
		Zlib{},
		Zstd{},
		LZ4Block{},
		LZSS{},
		LZHUF{},
	}

	for _, codec := range codecs {
		for _, size := range []int{0, 1, 7, 300_000} {
			t.Run(codec.Name(), func(t *testing.T) {
				t.Parallel()

				data := payloadOf(size)
				chain := []Codec{codec}

				stored, err := EncodeChain(chain, data)
				require.NoError(t, err)

				got, err := DecodeBytes(chain, stored, int64(len(data)), false)
				require.NoError(t, err, "size %d", size)
				if size == 0 {
					assert.Empty(t, got)
					return
				}
				assert.Equal(t, data, got, "size %d", size)
			})
		}
	}
}

func TestCodecRoundTripTransformThenDecompress(t *testing.T) {
	t.Parallel()

	data := payloadOf(100_000)
	chain := []Codec{XORByte{Key: 0x33}, Zlib{}}

	stored, err := EncodeChain(chain, data)
	require.NoError(t, err)
	assert.Less(t, len(stored), len(data))
	assert.Equal(t, "xor8+zlib", ChainName(chain))

	got, err := DecodeBytes(chain, stored, int64(len(data)), false)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestXORKeyUsesPhaseAndOrigin(t *testing.T) {
	t.Parallel()

	key := []byte{1, 2, 3}

	got, err := DecodeBytes([]Codec{XORKey{Key: key, Phase: 1}}, []byte{0x10, 0x20, 0x30, 0x40, 0x50}, 5, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x23, 0x31, 0x42, 0x53}, got)

	got, err = DecodeBytes([]Codec{XORKey{Key: key, Origin: 5}}, []byte{0xaa, 0xbb}, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa ^ 3, 0xbb ^ 1}, got)

	got, err = DecodeBytes([]Codec{XORKey{Key: key, Phase: -1}}, []byte{0, 0}, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1}, got)

	_, err = DecodeBytes([]Codec{XORKey{}}, []byte{1}, 1, false)
	require.ErrorIs(t, err, ErrCodecUnsupported)
}

func TestXORKeyStreamMatchesSlice(t *testing.T) {
	t.Parallel()

	codec := XORKey{Key: []byte{9, 8, 7, 6, 5}, Phase: 2, Origin: 11}
	data := payloadOf(10_000)

	want, err := codec.Encode(data)
	require.NoError(t, err)

	r, err := codec.NewReader(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), int64(len(data)))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestChainSizeEnforcement(t *testing.T) {
	t.Parallel()

	data := payloadOf(4096)
	stored, err := Zlib{}.Encode(data)
	require.NoError(t, err)
	chain := []Codec{Zlib{}}

	_, err = DecodeBytes(chain, stored, int64(len(data))+1, false)
	require.ErrorIs(t, err, ErrCodecTruncated)

	_, err = DecodeBytes(chain, stored, int64(len(data))-1, false)
	require.ErrorIs(t, err, ErrCodecCorrupt)

	got, err := DecodeBytes(chain, stored, int64(len(data))*2, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = DecodeBytes(chain, stored, int64(len(data))/2, true)
	require.ErrorIs(t, err, ErrCodecCorrupt)
}

func TestChainTruncatedAndCorruptStreams(t *testing.T) {
	t.Parallel()

	data := payloadOf(50_000)
	for _, codec := range []Codec{Zlib{}, Inflate{}, Zstd{}} {
		stored, err := EncodeChain([]Codec{codec}, data)
		require.NoError(t, err)

		_, err = DecodeBytes([]Codec{codec}, stored[:len(stored)/2], int64(len(data)), false)
		require.Error(t, err, codec.Name())
		assert.True(t, IsCodec(err), "%s: %v", codec.Name(), err)
	}

	_, err := DecodeBytes([]Codec{Zlib{}}, []byte("definitely not zlib"), 10, false)
	require.Error(t, err)
	assert.True(t, IsCodec(err))
}

func TestChainCutLZStreamsAreTruncated(t *testing.T) {
	t.Parallel()

	data := payloadOf(50_000)
	for _, codec := range []Codec{LZSS{}, LZHUF{}} {
		stored, err := EncodeChain([]Codec{codec}, data)
		require.NoError(t, err)

		for _, cut := range []int{0, 1, len(stored) / 2, len(stored) - 5} {
			_, err = DecodeBytes([]Codec{codec}, stored[:cut], int64(len(data)), false)
			require.ErrorIs(t, err, ErrCodecTruncated, "%s cut at %d", codec.Name(), cut)
		}
	}
}

func TestChainRejectsBadComposition(t *testing.T) {
	t.Parallel()

	_, err := OpenChain(bytes.NewReader(nil), []Codec{Zlib{}, Zstd{}}, 0, 0, false)
	require.ErrorIs(t, err, ErrCodecUnsupported)

	_, err = OpenChain(bytes.NewReader(nil), []Codec{nil}, 0, 0, false)
	require.ErrorIs(t, err, ErrCodecUnsupported)

	_, err = OpenChain(bytes.NewReader(nil), []Codec{LZHUF{}}, 0, 10, true)
	require.ErrorIs(t, err, ErrCodecUnsupported)

	_, err = OpenChain(nil, nil, 0, 0, false)
	require.ErrorIs(t, err, ErrNilReader)

	_, err = DecodeBytes([]Codec{Blowfish{Key: nil}}, []byte{1}, 1, false)
	require.ErrorIs(t, err, ErrCodecUnsupported)
}

func TestEncodeChainNeedsEncoders(t *testing.T) {
	t.Parallel()

	_, err := EncodeChain([]Codec{noEncoder{}}, []byte("x"))
	require.ErrorIs(t, err, ErrCodecUnsupported)

	out, err := EncodeChain(nil, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))
	assert.Equal(t, "stored", ChainName(nil))
}

func TestResourceCodecName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stored", Resource{}.Codec())
	assert.Equal(t, "blowfish+lzss", Resource{Codecs: []Codec{Blowfish{}, LZSS{}}}.Codec())
}

type noEncoder struct{}

func (noEncoder) Name() string    { return "opaque" }
func (noEncoder) Kind() CodecKind { return CodecTransform }
func (noEncoder) NewReader(src io.Reader, _, _ int64) (io.Reader, error) {
	return src, nil
}

func TestLZ4DeclaredSizeBeyondRatioIsCorrupt(t *testing.T) {
	t.Parallel()

	data := payloadOf(4096)
	stored, err := LZ4Block{}.Encode(data)
	require.NoError(t, err)

	_, err = DecodeBytes([]Codec{LZ4Block{}}, stored, 1<<30, false)
	require.ErrorIs(t, err, ErrCodecCorrupt)

	// a bound above the ratio is clamped, not rejected
	got, err := DecodeBytes([]Codec{LZ4Block{}}, stored, 1<<30, true)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Equal(t, int64(16*lz4MaxRatio+16), lz4MaxOutput(16))
}
