// Package relay forwards inform traffic between devices and a controller
// and records the decoded exchanges. Decoding happens after the response
// was written and never changes what is forwarded.
package relay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	inform "github.com/dmke/unispi"
	"github.com/dmke/unispi/internal/metrics"
	"github.com/dmke/unispi/internal/txlog"
)

// hop-by-hop headers, not forwarded in either direction
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

type Relay struct {
	upstream string
	decoder  *inform.Decoder
	client   *http.Client
	sink     txlog.Sink
	metrics  *metrics.Metrics
	log      logrus.FieldLogger

	pending sync.WaitGroup
}

// Option configures a Relay.
type Option func(*Relay)

func WithClient(c *http.Client) Option       { return func(r *Relay) { r.client = c } }
func WithSink(s txlog.Sink) Option           { return func(r *Relay) { r.sink = s } }
func WithMetrics(m *metrics.Metrics) Option  { return func(r *Relay) { r.metrics = m } }
func WithLogger(l logrus.FieldLogger) Option { return func(r *Relay) { r.log = l } }

// New creates a relay to upstream, the controller's base URL (e.g.
// "http://unifi:8080").
func New(upstream string, dec *inform.Decoder, opts ...Option) *Relay {
	r := &Relay{
		upstream: upstream,
		decoder:  dec,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns the gin engine serving every path.
func (r *Relay) Handler() http.Handler {
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(requestLogger(r.log))
	e.NoRoute(r.forward)
	return e
}

// Wait blocks until all pending decodes are done.
func (r *Relay) Wait() {
	r.pending.Wait()
}

func (r *Relay) forward(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	start := time.Now()
	resp, resBody, err := r.roundTrip(c, body)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordRelay(0, time.Since(start))
		}
		r.log.WithError(err).WithField("upstream", r.upstream).Error("upstream request failed")
		c.Status(http.StatusBadGateway)
		return
	}
	if r.metrics != nil {
		r.metrics.RecordRelay(resp.StatusCode, time.Since(start))
	}

	ip := c.RemoteIP()
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.record(context.Background(), ip, body, resBody)
	}()

	h := c.Writer.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	removeHopHeaders(h)
	c.Writer.WriteHeader(resp.StatusCode)
	if _, err := c.Writer.Write(resBody); err != nil {
		r.log.WithError(err).WithField("ip", ip).Warn("cannot write response to client")
	}
}

// roundTrip sends the request upstream and reads the complete response.
// The response body is already closed.
func (r *Relay) roundTrip(c *gin.Context, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method,
		r.upstream+c.Request.URL.RequestURI(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header = c.Request.Header.Clone()
	removeHopHeaders(req.Header)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, resBody, nil
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// record decodes both sides of an exchange and writes the transaction
// if both could be decoded.
func (r *Relay) record(ctx context.Context, ip string, reqBody, resBody []byte) {
	results := r.decoder.DecodeAll(ctx, [][]byte{reqBody, resBody}, 2)
	req, res := results[0], results[1]

	log := r.log.WithField("ip", ip)
	if !req.OK() {
		log.WithError(req.Err).Warn("cannot decode request")
		return
	}
	log = log.WithField("mac", req.Head.MAC)
	if !res.OK() {
		log.WithError(res.Err).Warn("cannot decode response")
		return
	}
	if r.sink == nil {
		return
	}
	if err := r.sink.Write(ctx, txlog.NewTransaction(ip, req, res)); err != nil {
		log.WithError(err).Error("cannot write transaction")
		return
	}
	if r.metrics != nil {
		r.metrics.Transactions.Inc()
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    status,
			"duration":  time.Since(start),
			"client_ip": c.ClientIP(),
			"bytes":     c.Writer.Size(),
		})
		switch {
		case status >= 500:
			entry.Error("http_request")
		case status >= 400:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}
	}
}
