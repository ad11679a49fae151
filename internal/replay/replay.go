// Package replay reads OSC traffic captured with tcpdump or Wireshark and
// either decodes it offline or sends it again to a live bridge.
package replay

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng section header block type.
const ngMagic = 0x0A0D0D0A

// Datagram is one captured UDP payload.
type Datagram struct {
	Time    time.Time
	SrcPort int
	DstPort int
	Payload []byte
}

// packetReader is satisfied by both pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Source yields the UDP datagrams of a capture that match a port.
type Source struct {
	closer  io.Closer
	packets *gopacket.PacketSource
	port    int

	// Skipped counts non-UDP or non-matching packets.
	Skipped int
}

// Open opens a pcap or pcapng file. Port filters on either UDP port; 0
// keeps every UDP datagram.
func Open(path string, port int) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	src, err := NewSource(f, port)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}
	src.closer = f
	return src, nil
}

// NewSource reads a capture from r, detecting pcap or pcapng from the
// first block.
func NewSource(r io.Reader, port int) (*Source, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("capture header: %w", err)
	}

	var pr packetReader
	if binary.LittleEndian.Uint32(magic) == ngMagic {
		pr, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		pr, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, err
	}

	ps := gopacket.NewPacketSource(pr, pr.LinkType())
	ps.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	return &Source{packets: ps, port: port}, nil
}

// Next returns the next matching datagram, or io.EOF at the end of the
// capture.
func (s *Source) Next() (Datagram, error) {
	for {
		packet, err := s.packets.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Datagram{}, io.EOF
			}
			return Datagram{}, fmt.Errorf("failed to read packet: %w", err)
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			s.Skipped++
			continue
		}
		src, dst := int(udp.SrcPort), int(udp.DstPort)
		if s.port != 0 && src != s.port && dst != s.port {
			s.Skipped++
			continue
		}
		return Datagram{
			Time:    packet.Metadata().Timestamp,
			SrcPort: src,
			DstPort: dst,
			Payload: append([]byte(nil), udp.Payload...),
		}, nil
	}
}

// Close releases the underlying file, if Open created one.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Stats summarises one pass over a capture.
type Stats struct {
	Datagrams int
	Messages  int
	Malformed int
	Skipped   int
	// Span is the capture time between the first and last datagram.
	Span time.Duration
}

// each calls fn for every datagram until the capture ends or ctx is done.
func each(ctx context.Context, src *Source, fn func(Datagram, *Stats) error) (Stats, error) {
	var st Stats
	var first time.Time
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		d, err := src.Next()
		if errors.Is(err, io.EOF) {
			st.Skipped = src.Skipped
			return st, nil
		}
		if err != nil {
			return st, err
		}
		if first.IsZero() {
			first = d.Time
		}
		st.Span = d.Time.Sub(first)
		st.Datagrams++
		if err := fn(d, &st); err != nil {
			return st, err
		}
	}
}
