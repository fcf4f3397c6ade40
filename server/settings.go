package server

import "github.com/scenewire/scenewire/client"

// Settings configures a Server and the per-client Encoder it creates for
// every connection. All values are in-process; there is no on-disk
// configuration format.
type Settings struct {
	// Port is the TCP port to listen on.
	Port uint16
	// Collate wraps each client's per-frame packets in a CollatedPacket.
	Collate bool
	// Compress gzip-compresses collated packets when that shrinks them.
	// Ignored if Collate is false.
	Compress bool
	// MaxPayload bounds both individual and collated packet payloads. Zero
	// means client.DefaultMaxPayload.
	MaxPayload uint16
	// ClientSendBufferSize sets the OS socket send buffer size for each
	// accepted connection. Zero leaves the OS default.
	ClientSendBufferSize int
	// Async controls the connection acceptor's commit behaviour: an async
	// server activates new connections the instant they're accepted; a
	// synchronous server holds them pending until CommitConnections is
	// called, so a client can never receive creates for a frame that was
	// already underway when it connected.
	Async bool
}

// NewSettings returns Settings seeded with sane defaults: collation and
// compression on, the default payload size, and synchronous connection
// commit.
func NewSettings(port uint16) Settings {
	return Settings{
		Port:       port,
		Collate:    true,
		Compress:   true,
		MaxPayload: client.DefaultMaxPayload,
	}
}

func (s Settings) clientSettings() client.Settings {
	return client.Settings{
		Collate:    s.Collate,
		Compress:   s.Compress,
		MaxPayload: s.MaxPayload,
	}
}
