package txlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inform "github.com/dmke/unispi"
	"github.com/dmke/unispi/internal/config"
)

func decoded(t *testing.T, payload string) *inform.Result {
	t.Helper()
	mac := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	pkt, err := inform.Encode(inform.EncodeOptions{MAC: mac, Flags: inform.SnappyCompressed, DataType: inform.JSON}, []byte(payload), nil)
	require.NoError(t, err)
	res := inform.NewDecoder(nil).Decode(context.Background(), pkt)
	require.NoError(t, res.Err)
	return res
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txns.jsonl")
	sink, err := NewFileSink(config.TxLogConfig{Enabled: true, Path: path})
	require.NoError(t, err)

	tx := NewTransaction("192.168.1.20", decoded(t, `{"_type":"inform"}`), decoded(t, `{"_type":"noop","interval":10}`))
	require.NoError(t, sink.Write(context.Background(), tx))
	require.NoError(t, sink.Write(context.Background(), tx))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	first := lines[0]
	assert.Len(t, first["id"], 36)
	assert.Equal(t, first["id"], lines[1]["id"])
	assert.Equal(t, map[string]interface{}{"ip": "192.168.1.20", "mac": "aa:bb:cc:dd:ee:ff"}, first["meta"])
	req := first["req"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"_type": "inform"}, req["payload"])
	assert.Equal(t, "Snappy", req["head"].(map[string]interface{})["compressionMethod"])
	res := first["res"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"_type": "noop", "interval": 10.0}, res["payload"])
}

func TestMemorySink(t *testing.T) {
	var sink MemorySink
	tx := NewTransaction("10.0.0.1", decoded(t, `{}`), decoded(t, `{}`))
	require.NoError(t, sink.Write(context.Background(), tx))
	assert.Equal(t, []*Transaction{tx}, sink.Transactions())
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", sink.Transactions()[0].Meta.MAC)
}
