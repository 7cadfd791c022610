// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

package gamepak

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderIntegers(t *testing.T) {
	t.Parallel()

	data := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06,
		0x07, 0x08, 0x09, 0x0a,
		0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12,
		0xff, 0xfe, 0xff,
	}

	r := NewBytesReader(data, "ints.bin")

	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), u8)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u24, err := r.U24()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x060504), u24)

	u32, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0a090807), u32)

	u64, err := r.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1211100f0e0d0c0b), u64)

	i8, err := r.I8()
	require.NoError(t, err)
	assert.Equal(t, int8(-1), i8)

	i16, err := r.I16()
	require.NoError(t, err)
	assert.Equal(t, int16(-2), i16)

	assert.Equal(t, r.Len(), r.Pos())
	assert.Zero(t, r.Remaining())
}

func TestReaderBigEndian(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}, "be.bin", WithByteOrder(binary.BigEndian))

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), u16)

	u24, err := r.U24()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x030405), u24)
}

func TestReaderTruncatedReadsKeepCursor(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte{1, 2, 3}, "short.bin")
	require.NoError(t, r.Skip(1))

	_, err := r.U32()
	require.ErrorIs(t, err, ErrTruncated)
	assert.True(t, IsValidation(err))
	assert.Equal(t, int64(1), r.Pos())

	_, err = r.Bytes(3)
	require.ErrorIs(t, err, ErrTruncated)

	require.ErrorIs(t, r.Skip(5), ErrTruncated)
	assert.Equal(t, int64(1), r.Pos())

	got, err := r.Bytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, got)

	_, err = r.U8()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReaderSeek(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte("0123456789"), "seek.bin")

	require.NoError(t, r.SeekTo(10))
	assert.Zero(t, r.Remaining())

	err := r.SeekTo(11)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	require.Error(t, r.SeekTo(-1))

	require.NoError(t, r.SeekTo(4))
	require.NoError(t, r.RelativeSeek(-2))
	assert.Equal(t, int64(2), r.Pos())
	require.Error(t, r.RelativeSeek(-3))
	require.Error(t, r.Skip(-1))

	b, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, byte('2'), b)
}

func TestReaderPeekAndReadAtDoNotMove(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte("abcdef"), "peek.bin")
	require.NoError(t, r.Skip(1))

	head, err := r.Peek(3)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(head))
	assert.Equal(t, int64(1), r.Pos())

	buf := make([]byte, 2)
	n, err := r.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "ef", string(buf))
	assert.Equal(t, int64(1), r.Pos())

	_, err = r.ReadAt(make([]byte, 3), 4)
	require.ErrorIs(t, err, ErrTruncated)
	_, err = r.ReadAt(buf, 7)
	assert.True(t, IsValidation(err))
}

func TestReaderSubReaderIsScoped(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte("headerPAYLOADtrailer"), "sub.bin")

	sub, err := r.SubReader(6, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sub.Len())
	assert.Equal(t, int64(6), sub.Base())
	assert.Equal(t, int64(8), sub.Abs(2))

	got, err := sub.Bytes(7)
	require.NoError(t, err)
	assert.Equal(t, "PAYLOAD", string(got))

	_, err = sub.U8()
	require.ErrorIs(t, err, ErrTruncated)

	nested, err := sub.SubReader(3, 4)
	require.NoError(t, err)
	got, err = nested.Bytes(4)
	require.NoError(t, err)
	assert.Equal(t, "LOAD", string(got))

	_, err = r.SubReader(15, 6)
	assert.True(t, IsValidation(err))

	clone := sub.Clone()
	assert.Zero(t, clone.Pos())
	assert.Equal(t, sub.Len(), clone.Len())
}

func TestReaderStrings(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte("name\x00rest\x00\x00\x00tail"), "str.bin")

	s, err := r.CString(0)
	require.NoError(t, err)
	assert.Equal(t, "name", s)

	s, err = r.FixedString(7)
	require.NoError(t, err)
	assert.Equal(t, "rest", s)

	_, err = r.CString(0)
	require.ErrorIs(t, err, ErrTruncated, "unterminated string at end")
}

func TestReaderCStringTooLong(t *testing.T) {
	t.Parallel()

	r := NewBytesReader([]byte("abcdefgh\x00"), "long.bin")

	_, err := r.CString(4)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.False(t, errors.Is(err, ErrTruncated))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
	assert.Zero(t, ve.Pos)
	assert.Zero(t, r.Pos())
}

func TestReaderEmptyContainer(t *testing.T) {
	t.Parallel()

	r := NewBytesReader(nil, "empty.bin")
	assert.Zero(t, r.Len())

	_, err := r.U8()
	require.ErrorIs(t, err, ErrTruncated)
	_, err = r.CString(0)
	require.ErrorIs(t, err, ErrTruncated)

	got, err := r.Bytes(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReaderValidators(t *testing.T) {
	t.Parallel()

	r := NewBytesReader(make([]byte, 100), "checks.bin", WithReaderLimits(Limits{MaxCount: 10, MaxNameLength: 8}))
	require.NoError(t, r.Skip(42))

	require.NoError(t, r.CheckCount(10))
	require.Error(t, r.CheckCount(11))
	require.Error(t, r.CheckCount(-1))

	require.NoError(t, r.CheckOffset(100))
	require.Error(t, r.CheckOffset(101))

	require.NoError(t, r.CheckLength(0))
	require.Error(t, r.CheckLength(101))

	require.NoError(t, r.CheckRange(90, 10))
	require.Error(t, r.CheckRange(90, 11))
	require.Error(t, r.CheckRange(1, 1<<62+(1<<62-1)))

	require.NoError(t, r.CheckName("12345678"))
	require.Error(t, r.CheckName("123456789"))
	require.Error(t, r.CheckName("a\x00b"))

	require.NoError(t, r.CheckDecodedSize(DefaultMaxDecodedSize))
	require.Error(t, r.CheckDecodedSize(DefaultMaxDecodedSize+1))

	err := r.CheckRange(99, 2)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, int64(42), ve.Pos)
	assert.Contains(t, ve.Error(), "at 42")
}

func TestReaderBufferedWindowMatchesDirectReads(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}

	buffered := NewBytesReader(data, "a.bin", WithBufferSize(64))
	direct := NewBytesReader(data, "b.bin", WithBufferSize(0))

	for buffered.Remaining() >= 4 {
		want, err := direct.U32()
		require.NoError(t, err)
		got, err := buffered.U32()
		require.NoError(t, err)
		require.Equal(t, want, got, "pos %d", buffered.Pos())

		if buffered.Pos()%100 == 0 {
			require.NoError(t, buffered.RelativeSeek(-3))
			require.NoError(t, direct.RelativeSeek(-3))
		}
	}
}

func TestLimitsDefaults(t *testing.T) {
	t.Parallel()

	var zero Limits
	require.NoError(t, zero.CheckCount(DefaultMaxCount))
	require.Error(t, zero.CheckCount(DefaultMaxCount+1))

	r := NewBytesReader(nil, "x")
	assert.Equal(t, DefaultLimits(), r.Limits())
}
