// Package txlog records decoded request/response pairs as JSON lines.
package txlog

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	inform "github.com/dmke/unispi"
	"github.com/dmke/unispi/internal/config"
	"github.com/dmke/unispi/internal/log"
)

// Transaction is one inform exchange between a device and the
// controller.
type Transaction struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Meta      Meta      `json:"meta"`
	Req       Message   `json:"req"`
	Res       Message   `json:"res"`
}

// Meta identifies the device.
type Meta struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// Message is one decoded packet.
type Message struct {
	Head    *inform.Header `json:"head"`
	Payload interface{}    `json:"payload"`
}

// NewTransaction pairs two decode results. Both are expected to be
// successful.
func NewTransaction(ip string, req, res *inform.Result) *Transaction {
	tx := &Transaction{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Meta:      Meta{IP: ip},
		Req:       Message{Head: req.Head, Payload: req.Data},
		Res:       Message{Head: res.Head, Payload: res.Data},
	}
	if req.Head != nil {
		tx.Meta.MAC = req.Head.MAC
	}
	return tx
}

// Sink stores transactions.
type Sink interface {
	Write(ctx context.Context, tx *Transaction) error
	Close() error
}

// WriterSink writes one JSON document per line.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewWriterSink wraps w. If w is an io.Closer, Close closes it.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, enc: json.NewEncoder(w)}
}

// NewFileSink writes to a rotated file.
func NewFileSink(cfg config.TxLogConfig) (*WriterSink, error) {
	w, err := log.NewFileWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewWriterSink(w), nil
}

func (s *WriterSink) Write(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(tx)
}

func (s *WriterSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MemorySink keeps transactions in memory.
type MemorySink struct {
	mu  sync.Mutex
	txs []*Transaction
}

func (s *MemorySink) Write(_ context.Context, tx *Transaction) error {
	s.mu.Lock()
	s.txs = append(s.txs, tx)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Transactions returns a copy of everything written so far.
func (s *MemorySink) Transactions() []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Transaction(nil), s.txs...)
}
