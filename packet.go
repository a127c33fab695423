package inform // import "github.com/dmke/unispi"

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Header holds the decoded clear text header of an inform packet. It is
// not modified after ParsePacket returns.
type Header struct {
	Raw           []byte      `json:"-" yaml:"-"` // the 40 header bytes, used as AAD for AES-GCM
	Version       uint32      `json:"version" yaml:"version"`
	MAC           string      `json:"mac" yaml:"mac"` // lower case, colon separated
	Encryption    Encryption  `json:"encryptionMethod" yaml:"encryptionMethod"`
	Compression   Compression `json:"compressionMethod" yaml:"compressionMethod"`
	IV            HexBytes    `json:"iv" yaml:"iv"` // present even if the payload is not encrypted
	DataType      DataType    `json:"dataType" yaml:"dataType"`
	Flags         Flags       `json:"flags" yaml:"flags"`
	PayloadLength uint32      `json:"payloadLength" yaml:"payloadLength"`
}

// Packet represents an HTTP POST request from an Unifi device to
// the controllers /inform URL, or the controller's response.
type Packet struct {
	Header  *Header
	Payload []byte // payload (possibly encrypted and compressed)
}

// ParsePacket decodes the header of buf and slices out the payload.
//
// The returned Packet's Payload shares memory with buf; bytes following
// the announced payload length are ignored. The header is copied.
func ParsePacket(buf []byte) (*Packet, error) {
	if len(buf) < 4 {
		return nil, &TruncatedError{Part: "header", Want: headerLength, Have: int64(len(buf))}
	}
	if err := checkMagic(buf[:4]); err != nil {
		return nil, err
	}
	if len(buf) < headerLength {
		return nil, &TruncatedError{Part: "header", Want: headerLength, Have: int64(len(buf))}
	}

	raw := make([]byte, headerLength)
	copy(raw, buf)

	off := 0
	h := &Header{Raw: raw}
	for _, f := range fieldOrder {
		h.update(f.name, raw[off:off+f.length])
		off += f.length
	}
	h.Encryption = h.Flags.Encryption()
	h.Compression = h.Flags.Compression()

	avail := int64(len(buf) - headerLength)
	if int64(h.PayloadLength) > avail {
		return nil, &TruncatedError{Part: "payload", Want: int64(h.PayloadLength), Have: avail}
	}
	end := headerLength + int(h.PayloadLength)

	return &Packet{
		Header:  h,
		Payload: buf[headerLength:end:end],
	}, nil
}

// ReadPacket tries to decode the input into a Packet instance.
//
// The reader is read from twice: once to fetch the header (which has a
// fixed size), and another time to read the body (its length is encoded
// in the header). This means, that the reader is not necessarily
// consumed until EOF.
//
// The returned Packet is nil if there's an error. Use Data() or a
// Decoder to decrypt and decompress the payload.
func ReadPacket(r io.Reader) (*Packet, error) {
	head := make([]byte, headerLength)
	n, err := io.ReadFull(r, head)
	if err == io.EOF {
		return nil, err
	}
	if n >= 4 {
		if merr := checkMagic(head[:4]); merr != nil {
			return nil, merr
		}
	}
	if err == io.ErrUnexpectedEOF {
		return nil, &TruncatedError{Part: "header", Want: headerLength, Have: int64(n)}
	} else if err != nil {
		return nil, err
	}

	// the payload grows as it is read, so a bogus length does not
	// allocate up front
	want := int64(binary.BigEndian.Uint32(head[36:40]))
	body, err := io.ReadAll(io.LimitReader(r, want))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) < want {
		return nil, &TruncatedError{Part: "payload", Want: want, Have: int64(len(body))}
	}

	return ParsePacket(append(head, body...))
}

func checkMagic(b []byte) error {
	if m := binary.BigEndian.Uint32(b); m != Magic {
		return &MagicError{Magic: m, Bytes: append([]byte(nil), b...)}
	}
	return nil
}

// update applies a partial update of the field with the given name.
func (h *Header) update(name headerField, data []byte) {
	switch name {
	case headerVersion:
		h.Version = binary.BigEndian.Uint32(data)
	case headerMAC:
		h.MAC = net.HardwareAddr(data).String()
	case headerFlags:
		h.Flags = Flags(binary.BigEndian.Uint16(data))
	case headerIV:
		h.IV = HexBytes(data)
	case headerDataType:
		h.DataType = DataType(binary.BigEndian.Uint32(data))
	case headerPayloadLength:
		h.PayloadLength = binary.BigEndian.Uint32(data)
	}
}

// Warnings lists conditions which don't stop decoding, but may make it
// fail later on.
func (h *Header) Warnings() []string {
	var w []string
	if h.Version != 0 {
		w = append(w, fmt.Sprintf("version was expected to be 0, was %d", h.Version))
	}
	if u := h.Flags.Unknown(); u != 0 {
		w = append(w, fmt.Sprintf("unknown flags %v found, decryption/decompression may fail", u.Names()))
	}
	return w
}

// Data decrypts and decompresses the payload (if necessary). The key
// is ignored if the payload is unencrypted.
func (p *Packet) Data(key []byte) (res []byte, err error) {
	if res, err = Decrypt(p.Header, p.Payload, key); err != nil {
		return nil, err
	}
	return Decompress(p.Header.Compression, res, 0)
}
