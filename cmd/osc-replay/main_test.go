package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_Defaults(t *testing.T) {
	o, files, err := parseArgs([]string{"capture.pcap"})
	require.NoError(t, err)
	assert.Equal(t, 9000, o.port)
	assert.Equal(t, "127.0.0.1:9000", o.target)
	assert.Equal(t, 1.0, o.speed)
	assert.False(t, o.dump)
	assert.Equal(t, []string{"capture.pcap"}, files)
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	assert.ErrorContains(t, run(ctx, nil, &bytes.Buffer{}), "exactly one")
	assert.Error(t, run(ctx, []string{"--speed", "fast", "x.pcap"}, &bytes.Buffer{}))
	assert.Error(t, run(ctx, []string{filepath.Join(t.TempDir(), "missing.pcap")}, &bytes.Buffer{}))
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &out))
	assert.Contains(t, out.String(), "osc-replay ")
}

func TestRun_Dump(t *testing.T) {
	payload, err := osc.NewMessage("/truehdd/state/gain", float32(0.5)).MarshalBinary()
	require.NoError(t, err)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	udp := &layers.UDP{SrcPort: 9001, DstPort: 9000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		eth, ip, udp, gopacket.Payload(payload)))

	path := filepath.Join(t.TempDir(), "gain.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	data := buf.Bytes()
	require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: len(data), Length: len(data)}, data))
	require.NoError(t, f.Close())

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--dump", path}, &out))
	assert.Contains(t, out.String(), `"address":"/truehdd/state/gain"`)
	assert.Contains(t, out.String(), `"family":"state"`)
}
