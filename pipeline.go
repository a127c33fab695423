package inform

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// Stage names a step of the decode pipeline.
type Stage uint8

const (
	StageHeader Stage = iota
	StageKey
	StageDecrypt
	StageDecompress
	StageDecode
)

func (s Stage) String() string {
	switch s {
	case StageHeader:
		return "header"
	case StageKey:
		return "key"
	case StageDecrypt:
		return "decrypt"
	case StageDecompress:
		return "decompress"
	case StageDecode:
		return "decode"
	}
	return "unknown"
}

// State is the progress of a single Decode call. States only move
// forward; Failed is terminal.
type State uint8

const (
	StateStart State = iota
	StateHeaderParsed
	StateKeyResolved
	StateDecrypted
	StateDecompressed
	StateDecoded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateHeaderParsed:
		return "HeaderParsed"
	case StateKeyResolved:
		return "KeyResolved"
	case StateDecrypted:
		return "Decrypted"
	case StateDecompressed:
		return "Decompressed"
	case StateDecoded:
		return "Decoded"
	case StateFailed:
		return "Failed"
	}
	return "unknown"
}

// Result is the outcome of decoding one packet. If Err is set, Data is
// nil; Head is kept when the header could be parsed.
type Result struct {
	Head     *Header     `json:"head,omitempty" yaml:"head,omitempty"`
	Data     interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	Err      error       `json:"-" yaml:"-"`
	KeyUsed  string      `json:"keyUsed,omitempty" yaml:"keyUsed,omitempty"`
	Warnings []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	State    State       `json:"-" yaml:"-"`
}

// OK reports whether the packet was decoded completely.
func (r *Result) OK() bool {
	return r.Err == nil && r.State == StateDecoded
}

// FailedStage returns the stage which failed, if any.
func (r *Result) FailedStage() (Stage, bool) {
	if se, ok := r.Err.(*StageError); ok {
		return se.Stage, true
	}
	return 0, false
}

func (r *Result) fail(stage Stage, err error) *Result {
	r.Data = nil
	r.Err = &StageError{Stage: stage, Err: err}
	r.State = StateFailed
	return r
}

// Observer is notified about every finished Decode call.
type Observer interface {
	Observe(*Result)
}

// Decoder runs the decode pipeline. It holds no per-packet state and is
// safe for concurrent use.
type Decoder struct {
	keys     KeyResolver
	log      logrus.FieldLogger
	maxSize  int
	observer Observer
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger for non-fatal warnings. By default nothing
// is logged.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Decoder) { d.log = l }
}

// WithMaxPayloadSize limits the decompressed payload size (0 means no
// limit).
func WithMaxPayloadSize(n int) Option {
	return func(d *Decoder) { d.maxSize = n }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(d *Decoder) { d.observer = o }
}

// NewDecoder builds a Decoder. keys may be nil, in which case every
// packet is decrypted with DefaultKey.
func NewDecoder(keys KeyResolver, opts ...Option) *Decoder {
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	d := &Decoder{keys: keys, log: silent}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode parses, decrypts, decompresses and decodes a single packet.
// Failures are reported in Result.Err and never returned otherwise.
//
// Key resolution is the only step which may block. If ctx is done by the
// time it returns, decoding stops and no header is exposed.
func (d *Decoder) Decode(ctx context.Context, packet []byte) *Result {
	res := d.decode(ctx, packet)
	if d.observer != nil {
		d.observer.Observe(res)
	}
	return res
}

func (d *Decoder) decode(ctx context.Context, packet []byte) *Result {
	res := &Result{State: StateStart}

	pkt, err := ParsePacket(packet)
	if err != nil {
		return res.fail(StageHeader, err)
	}
	h := pkt.Header
	res.Head = h
	res.Warnings = h.Warnings()
	res.State = StateHeaderParsed

	log := d.log.WithField("mac", h.MAC)
	for _, w := range res.Warnings {
		log.WithFields(logrus.Fields{"version": h.Version, "flags": h.Flags.Names()}).Warn(w)
	}

	hexKey, used := resolveKey(ctx, d.keys, h.MAC)
	if err := ctx.Err(); err != nil {
		res.Head, res.Warnings = nil, nil
		return res.fail(StageKey, err)
	}
	res.KeyUsed = used
	res.State = StateKeyResolved

	plain := pkt.Payload
	if h.Encryption != EncryptionNone {
		key, err := ParseKey(hexKey)
		if err != nil {
			return res.fail(StageDecrypt, err)
		}
		if plain, err = Decrypt(h, pkt.Payload, key); err != nil {
			return res.fail(StageDecrypt, err)
		}
	}
	res.State = StateDecrypted

	data, err := Decompress(h.Compression, plain, d.maxSize)
	if err != nil {
		return res.fail(StageDecompress, err)
	}
	res.State = StateDecompressed

	if res.Data, err = DecodePayload(data); err != nil {
		return res.fail(StageDecode, err)
	}
	res.State = StateDecoded

	log.WithFields(logrus.Fields{
		"encryption":  h.Encryption,
		"compression": h.Compression,
		"default_key": used == DefaultKeyMarker,
	}).Debug("packet decoded")
	return res
}

// DecodeAll decodes packets on at most workers goroutines. The results
// are in the same order as the packets.
func (d *Decoder) DecodeAll(ctx context.Context, packets [][]byte, workers int) []*Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]*Result, len(packets))
	p := pool.New().WithMaxGoroutines(workers)
	for i := range packets {
		i := i
		p.Go(func() {
			results[i] = d.Decode(ctx, packets[i])
		})
	}
	p.Wait()
	return results
}
