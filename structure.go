package inform

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Magic is the value of the first four header bytes, "TNBU" (UBNT
// reversed).
const Magic uint32 = 0x544E4255

type headerField byte

const (
	headerMagic headerField = iota
	headerVersion
	headerMAC
	headerFlags
	headerIV
	headerDataType
	headerPayloadLength
)

// fieldOrder statically describes a packet's fields, their order and the
// length of each field (in bytes).
var fieldOrder = []struct {
	name   headerField
	length int
}{
	{headerMagic, 4},
	{headerVersion, 4},
	{headerMAC, 6},
	{headerFlags, 2},
	{headerIV, 16},
	{headerDataType, 4},
	{headerPayloadLength, 4},
}

// headerLength is the combined length of the inform packet's clear text
// header.
const headerLength = 0 +
	4 /* headerMagic */ +
	4 /* headerVersion */ +
	6 /* headerMAC */ +
	2 /* headerFlags */ +
	16 /* headerIV */ +
	4 /* headerDataType */ +
	4 /* headerPayloadLength */

// Flags is the 16 bit flag field at offset 14.
type Flags uint16

// Various packet flags
const (
	Encrypted        Flags = 1 << iota // payload is AES-CBC encrypted
	Compressed                         // payload is zlib compressed
	SnappyCompressed                   // payload is compressed with Google's snappy algorithm
	EncryptedGCM                       // payload is AES-GCM encrypted, header is AAD
)

const knownFlags = Encrypted | Compressed | SnappyCompressed | EncryptedGCM

var flagNames = [...]string{"Encrypted", "Compressed", "CompressedSnappy", "EncryptedGCM"}

// Names lists the set flags in bit order. Unrecognized bits are named
// "Unk_<bit>".
func (f Flags) Names() []string {
	names := make([]string, 0, bits.OnesCount16(uint16(f)))
	for i := 0; i < 16; i++ {
		if f&(1<<i) == 0 {
			continue
		}
		if i < len(flagNames) {
			names = append(names, flagNames[i])
		} else {
			names = append(names, "Unk_"+strconv.Itoa(i))
		}
	}
	return names
}

// Unknown returns the set bits this package has no meaning for.
func (f Flags) Unknown() Flags {
	return f &^ knownFlags
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

func (f Flags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Names())
}

func (f Flags) MarshalYAML() (interface{}, error) {
	return f.Names(), nil
}

// Encryption derives the cipher from the flags. GCM wins over CBC.
func (f Flags) Encryption() Encryption {
	switch {
	case f&EncryptedGCM != 0:
		return EncryptionGCM
	case f&Encrypted != 0:
		return EncryptionCBC
	}
	return EncryptionNone
}

// Compression derives the compression from the flags. Snappy wins over
// zlib.
func (f Flags) Compression() Compression {
	switch {
	case f&SnappyCompressed != 0:
		return CompressionSnappy
	case f&Compressed != 0:
		return CompressionZlib
	}
	return CompressionNone
}

// Encryption is the payload cipher.
type Encryption uint8

const (
	EncryptionNone Encryption = iota
	EncryptionCBC
	EncryptionGCM
)

func (e Encryption) String() string {
	switch e {
	case EncryptionNone:
		return "none"
	case EncryptionCBC:
		return "AES-CBC"
	case EncryptionGCM:
		return "AES-GCM"
	}
	return fmt.Sprintf("%%!unknown(%d)", uint8(e))
}

func (e Encryption) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Compression is the payload compression.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionSnappy
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionSnappy:
		return "Snappy"
	}
	return fmt.Sprintf("%%!unknown(%d)", uint8(c))
}

func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// DataType is the informational tag at offset 32.
type DataType uint32

const (
	Binary DataType = iota
	JSON
)

func (t DataType) String() string {
	switch t {
	case Binary:
		return "Binary"
	case JSON:
		return "JSON"
	}
	return strconv.FormatUint(uint64(t), 10)
}

func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// HexBytes marshals as a hex string.
type HexBytes []byte

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
