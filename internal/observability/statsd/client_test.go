package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{prefix: "leadwatch", name: "scheduler.tick", want: "leadwatch.scheduler.tick"},
		{prefix: "", name: " job/runs ", want: "job_runs"},
		{prefix: "leadwatch", name: "a..b.", want: "leadwatch.a.b"},
		{prefix: "leadwatch", name: "bad:name|x", want: "leadwatch.bad_name_x"},
		{prefix: "leadwatch", name: "  ", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), tt.name)
	}
}

func TestLine_TagsMergeWithLocalOverride(t *testing.T) {
	c := &Client{prefix: "leadwatch", tags: encodeTags(map[string]string{"env": "prod", "service": "scheduler"})}

	got := c.line("scheduler.tick", "1", "c", map[string]string{"result": "success", "service": "refresher", " ": "x"})
	assert.Equal(t, "leadwatch.scheduler.tick:1|c|#env:prod,result:success,service:refresher", got)

	assert.Equal(t, "leadwatch.scheduler.tick:1|c|#env:prod,service:scheduler", c.line("scheduler.tick", "1", "c", nil))
	assert.Empty(t, c.line("", "1", "c", nil))

	bare := &Client{}
	assert.Equal(t, "x:2|g", bare.line("x", "2", "g", nil))
}

func TestClient_DisabledAndNilAreSilent(t *testing.T) {
	c, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("x", 1, nil)
	require.NoError(t, c.Close())

	var nilClient *Client
	nilClient.Timing("x", time.Second, nil)
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
}

func TestClient_SendsOverUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "leadwatch."})
	require.NoError(t, err)
	defer c.Close()
	require.True(t, c.Enabled())

	c.Timing("discovery.execution_duration", 1500*time.Microsecond, map[string]string{"outcome": "success"})

	buf := make([]byte, 512)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "leadwatch.discovery.execution_duration:1.5|ms|#outcome:success", strings.TrimSpace(string(buf[:n])))

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
}
