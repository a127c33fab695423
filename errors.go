package inform

import (
	"errors"
	"fmt"
)

// Sentinel errors for each class of decode failure. Use errors.Is to
// classify an error returned by this package.
var (
	ErrMagicMismatch         = errors.New("invalid packet: magic mismatch")
	ErrTruncatedPayload      = errors.New("insufficient data")
	ErrKeyFormatInvalid      = errors.New("invalid key")
	ErrAuthenticationFailure = errors.New("authentication failed")
	ErrPaddingInvalid        = errors.New("invalid padding")
	ErrDecompressionFailure  = errors.New("decompression failed")
	ErrPayloadDecodeFailure  = errors.New("payload is not valid JSON")
)

// MagicError reports a packet that does not start with "TNBU".
type MagicError struct {
	Magic uint32 // numeric value found at offset 0
	Bytes []byte // the offending bytes
}

func (err *MagicError) Error() string {
	return fmt.Sprintf("invalid packet: expected TNBU (%d), got %q (%d)", Magic, err.Bytes, err.Magic)
}

func (err *MagicError) Is(target error) bool { return target == ErrMagicMismatch }

// TruncatedError reports a buffer which is shorter than the header, or
// shorter than the payload length announced in the header.
type TruncatedError struct {
	Part string // "header" or "payload"
	Want int64
	Have int64
}

func (err *TruncatedError) Error() string {
	return fmt.Sprintf("insufficient data: %s too short, expected %d got %d bytes", err.Part, err.Want, err.Have)
}

func (err *TruncatedError) Is(target error) bool { return target == ErrTruncatedPayload }

// DecompressionError wraps the underlying zlib or snappy error.
type DecompressionError struct {
	Method Compression
	Err    error
}

func (err *DecompressionError) Error() string {
	return fmt.Sprintf("decompression failed (%s): %v", err.Method, err.Err)
}

func (err *DecompressionError) Is(target error) bool { return target == ErrDecompressionFailure }
func (err *DecompressionError) Unwrap() error        { return err.Err }

// PayloadError wraps UTF-8 and JSON syntax errors of the final payload.
type PayloadError struct {
	Err error
}

func (err *PayloadError) Error() string {
	return fmt.Sprintf("payload is not valid JSON: %v", err.Err)
}

func (err *PayloadError) Is(target error) bool { return target == ErrPayloadDecodeFailure }
func (err *PayloadError) Unwrap() error        { return err.Err }

// StageError records which pipeline stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (err *StageError) Error() string {
	return fmt.Sprintf("%s: %v", err.Stage, err.Err)
}

func (err *StageError) Unwrap() error { return err.Err }

type errInvalidPadding string

func (err errInvalidPadding) Error() string {
	return fmt.Sprintf("invalid padding: %s", string(err))
}

func (err errInvalidPadding) Is(target error) bool { return target == ErrPaddingInvalid }

var (
	errInvalidUTF8    = errors.New("not valid UTF-8")
	errTrailingData   = errors.New("trailing data after JSON value")
	errPayloadTooLong = errors.New("decompressed payload exceeds size limit")
)
