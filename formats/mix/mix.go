// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/gamepak

/*
Package mix reads Westwood MIX containers of Command & Conquer, Red Alert,
Tiberian Sun and Red Alert 2.

Three header layouts are recognized:

  - classic: file count u16, body size u32, index (first two bytes non-zero);
  - flagged: flags u32, then the classic header;
  - encrypted: flags u32 with the encrypted bit, an 80-byte RSA keysource and
    a Blowfish ECB encrypted header and index.

Index records are id i32, offset u32 and size u32 with offsets relative to
the body that follows the header. Entries carry no names: paths are the hex
id unless the caller supplies candidate names through OptionNames.
*/
package mix

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/woozymasta/gamepak"
	"github.com/woozymasta/gamepak/formats/internal/sniff"
)

// Plugin options.
const (
	// OptionKey is a hex encoded Blowfish key that replaces keysource derivation.
	OptionKey = "mix.key"
	// OptionNames is a comma separated list of file names to resolve ids.
	OptionNames = "mix.names"
	// OptionHash selects the id function: "crc" or "classic".
	// The default follows the header layout.
	OptionHash = "mix.hash"
)

const (
	flagChecksum  = 0x00010000
	flagEncrypted = 0x00020000

	classicHeaderSize = 6
	flaggedHeaderSize = 10
	keySourceSize     = 80
	recordSize        = 12
	checksumSize      = 20
	blockSize         = 8
	blowfishKeySize   = 56
)

var (
	// ErrBadHeader means the header is not a MIX header.
	ErrBadHeader = fmt.Errorf("%w: mix: bad header", gamepak.ErrValidation)
	// ErrBodySize means the declared body does not fit the container.
	ErrBodySize = fmt.Errorf("%w: mix: body size", gamepak.ErrValidation)
)

// Westwood public key for keysource blocks (raw RSA, exponent 0x10001).
//
//nolint:gochecknoglobals
var (
	rsaModulus, _ = new(big.Int).SetString("51bcda086d39fce4565160d651713fa2e8aa54fa6682b04aabdd0e6af8b0c1e6d1fb4f3daa437f15", 16)
	rsaExponent   = big.NewInt(0x10001)
)

// Format is the MIX plugin.
type Format struct{}

// New returns the MIX plugin.
func New() *Format {
	return &Format{}
}

// Info implements gamepak.Plugin.
func (*Format) Info() gamepak.Info {
	return gamepak.Info{
		ID:         "mix",
		Name:       "Westwood MIX",
		Extensions: []string{"mix"},
		Platforms:  []string{"Command & Conquer", "Red Alert", "Tiberian Sun", "Red Alert 2"},
		Caps:       gamepak.CapRead,
	}
}

// header is a decoded MIX header with its index.
type header struct {
	records  []record
	flags    uint32
	size     int64
	body     int64
	classic  bool
	checksum bool
}

// record is one index record.
type record struct {
	id     int32
	offset uint32
	size   uint32
}

// Score implements gamepak.Plugin.
func (*Format) Score(r *gamepak.Reader) (int, error) {
	var s gamepak.Score
	s.Extension(r, "mix")

	head, err := r.Peek(flaggedHeaderSize)
	if err != nil {
		return s.Value(), nil
	}

	if head[0] != 0 || head[1] != 0 {
		count := int64(binary.LittleEndian.Uint16(head[0:2]))
		body := int64(binary.LittleEndian.Uint32(head[2:6]))
		if s.Count(r, count) {
			s.Structure(classicHeaderSize+count*recordSize+body == r.Len())
		}

		return s.Value(), nil
	}

	flags := binary.LittleEndian.Uint32(head[0:4])
	if !s.Structure(flags&^(flagChecksum|flagEncrypted) == 0) || flags&flagEncrypted != 0 {
		return s.Value(), nil
	}

	count := int64(binary.LittleEndian.Uint16(head[4:6]))
	body := int64(binary.LittleEndian.Uint32(head[6:10]))
	if s.Count(r, count) {
		end := flaggedHeaderSize + count*recordSize + body
		if flags&flagChecksum != 0 {
			end += checksumSize
		}
		s.Structure(end == r.Len())
	}

	return s.Value(), nil
}

// Parse implements gamepak.Plugin.
func (*Format) Parse(r *gamepak.Reader, env *gamepak.Env) ([]gamepak.Resource, error) {
	h, err := readHeader(r, env)
	if err != nil {
		return nil, err
	}

	if err := r.CheckRange(h.size, h.body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBodySize, err)
	}

	names, err := nameTable(env, h.classic)
	if err != nil {
		return nil, err
	}

	env.SetHeaders([]gamepak.HeaderPair{
		{Key: "flags", Value: fmt.Sprintf("0x%08x", h.flags)},
		{Key: "checksum", Value: fmt.Sprint(h.checksum)},
	})

	out := make([]gamepak.Resource, 0, len(h.records))
	for _, rec := range h.records {
		path, named := names[rec.id]
		if !named {
			path = fmt.Sprintf("%08x", uint32(rec.id)) //nolint:gosec // id is a bit pattern
		}

		if int64(rec.offset)+int64(rec.size) > h.body {
			env.Skip(path, fmt.Errorf("%w: entry past body end", ErrBodySize))
			continue
		}

		res := gamepak.Resource{
			Path:       path,
			Offset:     h.size + int64(rec.offset),
			StoredSize: int64(rec.size),
			Size:       int64(rec.size),
		}
		res.SetProperty(gamepak.PropID, uint32(rec.id)) //nolint:gosec // id is a bit pattern
		out = append(out, res)
	}

	return out, nil
}

// GuessExtension implements gamepak.ExtensionGuesser.
func (*Format) GuessExtension(_ gamepak.Resource, head []byte) string {
	return sniff.Extension(head)
}

// readHeader decodes whichever header layout starts the container.
func readHeader(r *gamepak.Reader, env *gamepak.Env) (header, error) {
	first, err := r.Peek(4)
	if err != nil {
		return header{}, err
	}

	if first[0] != 0 || first[1] != 0 {
		h := header{classic: true}
		if err := readPlainIndex(r, &h); err != nil {
			return header{}, err
		}

		return h, nil
	}

	flags, err := r.U32()
	if err != nil {
		return header{}, err
	}
	if flags&^(flagChecksum|flagEncrypted) != 0 {
		return header{}, fmt.Errorf("%w: flags 0x%08x", ErrBadHeader, flags)
	}

	h := header{flags: flags, checksum: flags&flagChecksum != 0}
	if flags&flagEncrypted != 0 {
		if err := readEncryptedIndex(r, env, &h); err != nil {
			return header{}, err
		}
	} else if err := readPlainIndex(r, &h); err != nil {
		return header{}, err
	}

	return h, nil
}

// readPlainIndex reads count, body size and records at the cursor.
func readPlainIndex(r *gamepak.Reader, h *header) error {
	count, err := r.U16()
	if err != nil {
		return err
	}
	body, err := r.U32()
	if err != nil {
		return err
	}
	if err := r.CheckCount(int64(count)); err != nil {
		return err
	}

	raw, err := r.Bytes(int64(count) * recordSize)
	if err != nil {
		return err
	}

	h.records = decodeRecords(raw, int(count))
	h.body = int64(body)
	h.size = r.Pos()

	return nil
}

// readEncryptedIndex decrypts the Blowfish protected header and index.
func readEncryptedIndex(r *gamepak.Reader, env *gamepak.Env, h *header) error {
	keySource, err := r.Bytes(keySourceSize)
	if err != nil {
		return err
	}

	key, err := blowfishKey(env, keySource)
	if err != nil {
		return err
	}
	chain := []gamepak.Codec{gamepak.Blowfish{Key: key}}

	start := r.Pos()
	first, err := r.Bytes(blockSize)
	if err != nil {
		return err
	}
	plain, err := gamepak.DecodeBytes(chain, first, blockSize, false)
	if err != nil {
		return err
	}

	count := int64(binary.LittleEndian.Uint16(plain[0:2]))
	if err := r.CheckCount(count); err != nil {
		return fmt.Errorf("encrypted index (wrong key?): %w", err)
	}

	indexLen := (6 + count*recordSize + blockSize - 1) / blockSize * blockSize
	if err := r.CheckRange(start, indexLen); err != nil {
		return fmt.Errorf("encrypted index (wrong key?): %w", err)
	}
	if err := r.SeekTo(start); err != nil {
		return err
	}

	enc, err := r.Bytes(indexLen)
	if err != nil {
		return err
	}
	plain, err = gamepak.DecodeBytes(chain, enc, indexLen, false)
	if err != nil {
		return err
	}

	h.body = int64(binary.LittleEndian.Uint32(plain[2:6]))
	h.records = decodeRecords(plain[6:], int(count))
	h.size = r.Pos()

	return nil
}

// decodeRecords splits raw index bytes into count records.
func decodeRecords(raw []byte, count int) []record {
	out := make([]record, count)
	for i := range out {
		b := raw[i*recordSize:]
		out[i] = record{
			id:     int32(binary.LittleEndian.Uint32(b[0:4])), //nolint:gosec // id is a bit pattern
			offset: binary.LittleEndian.Uint32(b[4:8]),
			size:   binary.LittleEndian.Uint32(b[8:12]),
		}
	}

	return out
}

// blowfishKey returns the key from OptionKey or derives it from the keysource.
func blowfishKey(env *gamepak.Env, keySource []byte) ([]byte, error) {
	if raw, ok := env.Option(OptionKey); ok {
		key, err := hex.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", gamepak.ErrCodecUnsupported, OptionKey, err)
		}

		return key, nil
	}

	return deriveKey(keySource), nil
}

// deriveKey applies the public RSA operation to both 40-byte keysource
// halves and packs the results into a 56-byte little-endian key.
func deriveKey(keySource []byte) []byte {
	const half = keySourceSize / 2

	reversed := make([]byte, keySourceSize)
	for i, b := range keySource {
		reversed[keySourceSize-1-i] = b
	}

	hi := new(big.Int).Exp(new(big.Int).SetBytes(reversed[:half]), rsaExponent, rsaModulus)
	lo := new(big.Int).Exp(new(big.Int).SetBytes(reversed[half:]), rsaExponent, rsaModulus)
	combined := new(big.Int).Add(new(big.Int).Lsh(hi, 312), lo)

	be := make([]byte, blowfishKeySize)
	if b := combined.Bytes(); len(b) <= blowfishKeySize {
		copy(be[blowfishKeySize-len(b):], b)
	} else {
		copy(be, b[len(b)-blowfishKeySize:])
	}

	key := make([]byte, blowfishKeySize)
	for i := range key {
		key[i] = be[blowfishKeySize-1-i]
	}

	return key
}

// nameTable maps ids of OptionNames entries back to their names.
func nameTable(env *gamepak.Env, classic bool) (map[int32]string, error) {
	raw, ok := env.Option(OptionNames)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	hash := CRCID
	mode, _ := env.Option(OptionHash)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		if classic {
			hash = ClassicID
		}
	case "crc":
	case "classic":
		hash = ClassicID
	default:
		return nil, fmt.Errorf("%w: %s=%q", gamepak.ErrValidation, OptionHash, mode)
	}

	names := make(map[int32]string)
	for name := range strings.SplitSeq(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := names[hash(name)]; !exists {
			names[hash(name)] = name
		}
	}

	return names, nil
}
