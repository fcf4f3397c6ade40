// Command scenewire-dump connects to a scenewire server and prints a trace
// of every message it receives, decoding collated packets transparently.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"

	"github.com/scenewire/scenewire/collate"
	"github.com/scenewire/scenewire/message"
	"github.com/scenewire/scenewire/netbuf"
	"github.com/scenewire/scenewire/wire"
)

func main() {
	var (
		host = flag.String("host", "127.0.0.1", "Server host")
		port = flag.Uint("port", 33500, "Server port")
	)
	flag.Parse()

	log.Printf("connecting to %s:%d...", *host, *port)
	conn, err := net.Dial("tcp", net.JoinHostPort(*host, fmt.Sprintf("%d", *port)))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Println("connected")

	buf := netbuf.NewBuffer()
	readBuf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf.Append(readBuf[:n])
			drain(buf)
		}
		if err != nil {
			log.Printf("connection closed: %v", err)
			return
		}
	}
}

// drain extracts every complete packet currently buffered and traces it.
func drain(buf *netbuf.Buffer) {
	for {
		packet, ok, err := buf.ExtractPacket()
		if err != nil {
			log.Printf("malformed packet: %v", err)
			return
		}
		if !ok {
			return
		}
		tracePacket(packet)
	}
}

func tracePacket(data []byte) {
	r, err := wire.NewReader(data)
	if err != nil {
		log.Printf("failed to parse packet: %v", err)
		return
	}

	if r.RoutingID() == wire.RoutingCollated {
		traceCollated(r)
		return
	}
	traceSingle(r)
}

func traceCollated(r *wire.Reader) {
	body, err := collate.Decode(r)
	if err != nil {
		log.Printf("failed to decode collated packet: %v", err)
		return
	}
	inner, err := collate.SplitPackets(body)
	if err != nil {
		log.Printf("failed to split collated packet: %v", err)
		return
	}
	log.Printf("collated packet: %d inner packets", len(inner))
	for _, p := range inner {
		ir, err := wire.NewReader(p)
		if err != nil {
			log.Printf("  malformed inner packet: %v", err)
			continue
		}
		traceSingle(ir)
	}
}

func traceSingle(r *wire.Reader) {
	switch r.RoutingID() {
	case wire.RoutingServerInfo:
		var info message.ServerInfoMessage
		if info.Read(r) {
			log.Printf("  server info: timeUnit=%d frameTime=%d coordFrame=%d", info.TimeUnit, info.DefaultFrameTime, info.CoordinateFrame)
		}
	case wire.RoutingControl:
		var ctrl message.ControlMessage
		if ctrl.Read(r) {
			log.Printf("  control: id=%d value32=%d value64=%d", r.MessageID(), ctrl.Value32, ctrl.Value64)
		}
	case wire.RoutingMesh:
		log.Printf("  mesh message: type=%d", r.MessageID())
	default:
		log.Printf("  shape message: routing=%d messageID=%d bytes=%d", r.RoutingID(), r.MessageID(), r.Remaining())
	}
}
