package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inform "github.com/dmke/unispi"
	"github.com/dmke/unispi/internal/metrics"
	"github.com/dmke/unispi/internal/txlog"
)

const deviceKey = "0123456789abcdeffedcba9876543210"

var deviceMAC = net.HardwareAddr{0xf0, 0x9f, 0xc2, 0x79, 0x63, 0x90}

func init() {
	gin.SetMode(gin.TestMode)
}

func packet(t *testing.T, flags inform.Flags, payload string) []byte {
	t.Helper()
	key, err := hex.DecodeString(deviceKey)
	require.NoError(t, err)
	pkt, err := inform.Encode(inform.EncodeOptions{MAC: deviceMAC, Flags: flags, DataType: inform.JSON}, []byte(payload), key)
	require.NoError(t, err)
	return pkt
}

type fixture struct {
	relay   *Relay
	server  *httptest.Server
	sink    *txlog.MemorySink
	metrics *metrics.Metrics
	logs    *logtest.Hook
}

func newFixture(t *testing.T, upstream string) *fixture {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	f := &fixture{sink: &txlog.MemorySink{}, metrics: metrics.New(nil), logs: hook}

	dec := inform.NewDecoder(inform.StaticKeys{deviceMAC.String(): deviceKey}, inform.WithObserver(f.metrics))
	f.relay = New(upstream, dec, WithSink(f.sink), WithMetrics(f.metrics), WithLogger(logger))
	f.server = httptest.NewServer(f.relay.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func TestRelayForwardsAndRecords(t *testing.T) {
	assert := assert.New(t)
	reqPkt := packet(t, inform.EncryptedGCM|inform.SnappyCompressed, `{"_type":"inform","model":"U7PG2"}`)
	resPkt := packet(t, inform.EncryptedGCM|inform.SnappyCompressed, `{"_type":"noop","interval":10}`)

	var gotPath, gotAgent string
	var gotBody []byte
	controller := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAgent = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/x-binary")
		w.Header().Set("X-Controller", "unifi")
		w.WriteHeader(http.StatusOK)
		w.Write(resPkt)
	}))
	defer controller.Close()

	f := newFixture(t, controller.URL)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/inform?x=1", bytes.NewReader(reqPkt))
	require.NoError(t, err)
	req.Header.Set("User-Agent", "AirControl Agent v1.0")
	req.Header.Set("Content-Type", "application/x-binary")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(resPkt, body)
	assert.Equal("unifi", resp.Header.Get("X-Controller"))
	assert.Equal("application/x-binary", resp.Header.Get("Content-Type"))
	assert.Equal("/inform?x=1", gotPath)
	assert.Equal("AirControl Agent v1.0", gotAgent)
	assert.Equal(reqPkt, gotBody)

	f.relay.Wait()
	txs := f.sink.Transactions()
	require.Len(t, txs, 1)
	tx := txs[0]
	assert.Equal("f0:9f:c2:79:63:90", tx.Meta.MAC)
	assert.Equal("127.0.0.1", tx.Meta.IP)
	assert.Equal(map[string]interface{}{"_type": "inform", "model": "U7PG2"}, tx.Req.Payload)
	assert.Equal("noop", tx.Res.Payload.(map[string]interface{})["_type"])
	assert.Equal(inform.EncryptionGCM, tx.Req.Head.Encryption)

	assert.Equal(1.0, testutil.ToFloat64(f.metrics.Transactions))
	assert.Equal(2.0, testutil.ToFloat64(f.metrics.PacketsDecoded.WithLabelValues("AES-GCM", "Snappy")))
}

func TestRelayPassesThroughUndecodable(t *testing.T) {
	assert := assert.New(t)
	controller := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not here"))
	}))
	defer controller.Close()

	f := newFixture(t, controller.URL)

	resp, err := http.Post(f.server.URL+"/inform", "application/x-binary", bytes.NewReader([]byte("garbage")))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(http.StatusNotFound, resp.StatusCode)
	assert.Equal("not here", string(body))

	f.relay.Wait()
	assert.Empty(f.sink.Transactions())
	assert.Equal(2.0, testutil.ToFloat64(f.metrics.DecodeFailures.WithLabelValues("header")))
	assert.Equal(1.0, testutil.ToFloat64(f.metrics.RelayRequests.WithLabelValues("404")))
}

func TestRelayUpstreamDown(t *testing.T) {
	controller := httptest.NewServer(http.NotFoundHandler())
	url := controller.URL
	controller.Close()

	f := newFixture(t, url)

	resp, err := http.Post(f.server.URL+"/inform", "application/x-binary", bytes.NewReader(packet(t, inform.Encrypted, `{}`)))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UpstreamErrors))

	f.relay.Wait()
	assert.Empty(t, f.sink.Transactions())
}

// brokenClient is a ResponseWriter whose connection went away.
type brokenClient struct {
	header http.Header
	status int
}

func (w *brokenClient) Header() http.Header { return w.header }
func (w *brokenClient) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}
func (w *brokenClient) Write([]byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return 0, errors.New("write: broken pipe")
}

func TestRelayClientGone(t *testing.T) {
	assert := assert.New(t)
	resPkt := packet(t, inform.EncryptedGCM, `{"_type":"noop","interval":10}`)
	controller := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(resPkt)
	}))
	defer controller.Close()

	f := newFixture(t, controller.URL)
	w := &brokenClient{header: http.Header{}}
	req := httptest.NewRequest(http.MethodPost, "/inform", bytes.NewReader(packet(t, inform.EncryptedGCM, `{"_type":"inform"}`)))
	f.relay.Handler().ServeHTTP(w, req)
	f.relay.Wait()

	assert.Equal(http.StatusOK, w.status)
	assert.Equal(0.0, testutil.ToFloat64(f.metrics.UpstreamErrors))
	assert.Equal(1.0, testutil.ToFloat64(f.metrics.RelayRequests.WithLabelValues("200")))
	assert.Len(f.sink.Transactions(), 1)

	var messages []string
	for _, e := range f.logs.AllEntries() {
		messages = append(messages, e.Message)
	}
	assert.Contains(messages, "cannot write response to client")
	assert.NotContains(messages, "upstream request failed")
}

func TestRecordNeedsBothSides(t *testing.T) {
	sink := &txlog.MemorySink{}
	logger, hook := logtest.NewNullLogger()
	dec := inform.NewDecoder(inform.StaticKeys{deviceMAC.String(): deviceKey})
	r := New("http://unused", dec, WithSink(sink), WithLogger(logger))

	r.record(context.Background(), "10.0.0.2", packet(t, inform.Encrypted, `{}`), []byte("TNBU"))
	assert.Empty(t, sink.Transactions())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "cannot decode response", hook.LastEntry().Message)

	r.record(context.Background(), "10.0.0.2", packet(t, inform.Encrypted, `{}`), packet(t, inform.Compressed, `[]`))
	assert.Len(t, sink.Transactions(), 1)
}
