package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesCounters(t *testing.T) {
	DLTPacketsTotal.WithLabelValues("en10mb", OpDecode).Inc()
	RewritePacketsTotal.WithLabelValues(OutcomeWritten).Inc()

	srv := NewServer("127.0.0.1:0", "")
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `tcpedit_dlt_packets_total{op="decode",plugin="en10mb"}`))
	assert.True(t, strings.Contains(text, `tcpedit_rewrite_packets_total{outcome="written"}`))
}

func TestServerStartBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), "/m")
	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics listen")
}

func TestServerStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "").Stop(context.Background()))
}
