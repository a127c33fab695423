package inform

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
)

// EncodeOptions describes the header of a packet built by Encode.
type EncodeOptions struct {
	MAC      net.HardwareAddr
	Version  uint32
	Flags    Flags
	IV       []byte // 16 bytes; random if nil
	DataType DataType
}

// Encode builds a packet around payload, compressing and encrypting it
// as requested by opts.Flags. It is the inverse of Decoder.Decode and
// is used to craft packets for replay and testing.
func Encode(opts EncodeOptions, payload, key []byte) ([]byte, error) {
	if len(opts.MAC) != 6 {
		return nil, fmt.Errorf("invalid MAC address: %v", opts.MAC)
	}
	iv := opts.IV
	if iv == nil {
		iv = make([]byte, 16)
		if _, err := rand.Read(iv); err != nil {
			return nil, err
		}
	}
	if len(iv) != 16 {
		return nil, fmt.Errorf("invalid IV: must be 16 bytes long, got %d", len(iv))
	}

	h := &Header{
		Version:     opts.Version,
		MAC:         opts.MAC.String(),
		Encryption:  opts.Flags.Encryption(),
		Compression: opts.Flags.Compression(),
		IV:          HexBytes(iv),
		DataType:    opts.DataType,
		Flags:       opts.Flags,
	}

	body, err := compress(h.Compression, payload)
	if err != nil {
		return nil, err
	}
	h.PayloadLength = uint32(encryptedLength(h.Encryption, len(body)))

	raw := make([]byte, headerLength)
	binary.BigEndian.PutUint32(raw[0:4], Magic)
	binary.BigEndian.PutUint32(raw[4:8], h.Version)
	copy(raw[8:14], opts.MAC)
	binary.BigEndian.PutUint16(raw[14:16], uint16(h.Flags))
	copy(raw[16:32], iv)
	binary.BigEndian.PutUint32(raw[32:36], uint32(h.DataType))
	binary.BigEndian.PutUint32(raw[36:40], h.PayloadLength)
	h.Raw = raw

	if body, err = encrypt(h, body, key); err != nil {
		return nil, err
	}
	return append(raw, body...), nil
}
