package listener

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

type PacketSource interface {
	Packets() chan gopacket.Packet
}

var _ PacketSource = (*gopacket.PacketSource)(nil)

var magicPcapNg = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// NewPacketSourceReader reads a pcap or pcapng capture.
func NewPacketSourceReader(r io.Reader) (PacketSource, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil {
		return nil, err
	}

	if bytes.Equal(head, magicPcapNg) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return gopacket.NewPacketSource(ng, ng.LinkType()), nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	return gopacket.NewPacketSource(pr, pr.LinkType()), nil
}

// NewPacketSourceFile opens a capture file. The caller closes the returned
// file once the source is drained.
func NewPacketSourceFile(fileName string) (PacketSource, io.Closer, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, nil, err
	}
	s, err := NewPacketSourceReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return s, f, nil
}
