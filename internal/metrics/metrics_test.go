package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inform "github.com/dmke/unispi"
)

func TestObserve(t *testing.T) {
	assert := assert.New(t)
	m := New(nil)

	dec := inform.NewDecoder(nil, inform.WithObserver(m))
	ok := []byte("TNBU\x00\x00\x00\x01\xaa\xbb\xcc\xdd\xee\xff\x00\x00" +
		"0123456789abcdef" + "\x00\x00\x00\x01" + "\x00\x00\x00\x02" + "{}")
	dec.Decode(context.Background(), ok)
	dec.Decode(context.Background(), []byte("UBNT"))
	dec.Decode(context.Background(), []byte("TNBU"))

	assert.Equal(1.0, testutil.ToFloat64(m.PacketsDecoded.WithLabelValues("none", "none")))
	assert.Equal(2.0, testutil.ToFloat64(m.DecodeFailures.WithLabelValues("header")))
	assert.Equal(1.0, testutil.ToFloat64(m.DecodeWarnings))
	assert.Equal(1.0, testutil.ToFloat64(m.DefaultKeyUsed))
}

func TestRecordRelayAndHandler(t *testing.T) {
	m := New(nil)
	m.RecordRelay(200, 10*time.Millisecond)
	m.RecordRelay(0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayRequests.WithLabelValues("200")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `inform_relay_requests_total{status="0"} 1`))
	assert.Contains(t, body, "inform_relay_upstream_errors_total 1")
}
