package inform

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Decompress inflates data with the given method. A limit > 0 caps the
// size of the decompressed output.
func Decompress(method Compression, data []byte, limit int) ([]byte, error) {
	var (
		res []byte
		err error
	)
	switch method {
	case CompressionNone:
		return data, nil
	case CompressionZlib:
		res, err = inflate(data, limit)
	case CompressionSnappy:
		res, err = unsnappy(data, limit)
	default:
		err = fmt.Errorf("unknown compression method")
	}
	if err != nil {
		return nil, &DecompressionError{Method: method, Err: err}
	}
	return res, nil
}

// inflate decompresses a zlib stream, including its checksum.
func inflate(data []byte, limit int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var r io.Reader = zr
	if limit > 0 {
		r = io.LimitReader(zr, int64(limit)+1)
	}
	res, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(res) > limit {
		return nil, errPayloadTooLong
	}
	return res, nil
}

// unsnappy decodes a snappy block. The decoded length is checked before
// any allocation happens.
func unsnappy(data []byte, limit int) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, err
	}
	if limit > 0 && n > limit {
		return nil, errPayloadTooLong
	}
	return snappy.Decode(nil, data)
}

// compress is the inverse of Decompress.
func compress(method Compression, data []byte) ([]byte, error) {
	switch method {
	case CompressionNone:
		return data, nil
	case CompressionZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	}
	return nil, fmt.Errorf("unknown compression method: %v", method)
}
