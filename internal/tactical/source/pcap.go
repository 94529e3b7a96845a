package source

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/tactical/internal/tactical"
)

// ReadPcapFrames decodes the frames carried in UDP datagrams of a pcap
// capture. A port of 0 accepts any destination port. Datagrams that do not
// decode as frames are skipped. Frames without a timestamp take the
// capture time.
func ReadPcapFrames(r io.Reader, port int) ([]tactical.Frame, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	src := gopacket.NewPacketSource(pr, pr.LinkType())

	var frames []tactical.Frame
	packets, skipped := 0, 0
	for packet := range src.Packets() {
		packets++
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if port > 0 && int(udp.DstPort) != port {
			continue
		}
		f, err := DecodeFrame(udp.Payload)
		if err != nil {
			skipped++
			tactical.Tracef("[Source] pcap packet %d: %v", packets, err)
			continue
		}
		if f.Time.IsZero() {
			f.Time = packet.Metadata().Timestamp
		}
		frames = append(frames, f)
	}
	tactical.Diagf("[Source] pcap: %d packets, %d frames, %d undecodable", packets, len(frames), skipped)
	return frames, nil
}

// pcapWriter writes UDP datagrams as Ethernet/IPv4 packets.
type pcapWriter struct {
	w    *pcapgo.Writer
	opts gopacket.SerializeOptions
}

func newPcapWriter(w io.Writer) (*pcapWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &pcapWriter{w: pw, opts: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}}, nil
}

func (pw *pcapWriter) writeDatagram(ts time.Time, port uint16, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(port)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, pw.opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(buf.Bytes()), Length: len(buf.Bytes())}
	return pw.w.WritePacket(ci, buf.Bytes())
}

// WritePcapFrames writes one UDP datagram per frame to port, captured at
// the frame time, so a recording can be replayed through packet tools.
func WritePcapFrames(w io.Writer, frames []tactical.Frame, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	pw, err := newPcapWriter(w)
	if err != nil {
		return fmt.Errorf("write pcap header: %w", err)
	}
	for i, f := range frames {
		data, err := EncodeFrame(f)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := pw.writeDatagram(f.Time, uint16(port), data); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}
