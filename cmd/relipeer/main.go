/*
File Name:  main.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

relipeer is a reference embedder for the reliconn reliability layer: it
binds a UDP socket, tracks peers in a peertable.Table, serves a status API,
and persists a per-peer delivery counter, following the Init/Connect split
Peernet.go uses for the full Peernet client.
*/
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	reliconn "github.com/Trangar/reliconn"
	"github.com/Trangar/reliconn/cmd/relipeer/config"
	"github.com/Trangar/reliconn/cmd/relipeer/peerstore"
	"github.com/Trangar/reliconn/cmd/relipeer/statusapi"
	"github.com/Trangar/reliconn/peertable"
	"github.com/Trangar/reliconn/transport"
)

func main() {
	configFile := flag.String("config", "relipeer.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		log.Fatalf("relipeer: %v", err)
	}
}

func byteCodec() (func([]byte) ([]byte, error), func([]byte) ([]byte, error)) {
	identity := func(b []byte) ([]byte, error) { return b, nil }
	return identity, identity
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	params, err := cfg.ToParams()
	if err != nil {
		return err
	}

	store, err := peerstore.Open(cfg.PeerStoreDir)
	if err != nil {
		return err
	}
	defer store.Close()

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return err
	}
	sock, err := transport.ListenUDP(udpAddr)
	if err != nil {
		return err
	}
	defer sock.Close()

	enc, dec := byteCodec()
	filters := reliconn.Filters{
		LogError: func(function, format string, v ...interface{}) {
			log.Printf("[%s] "+format, append([]interface{}{function}, v...)...)
		},
	}
	table := peertable.New[[]byte, []byte](params, enc, dec, filters)

	var api *statusapi.API
	var source *statusapi.ChannelSource
	if cfg.StatusListen != "" {
		source = statusapi.NewChannelSource()
		api = statusapi.New(source)
		server := &http.Server{Addr: cfg.StatusListen, Handler: api.Router}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("status API: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Printf("relipeer listening on %s", cfg.Listen)
	return pollLoop(ctx, sock, table, store, api, source)
}

// pollLoop repeatedly demultiplexes inbound datagrams by sender address,
// registering new peers on first contact, driving each known peer's
// Connector, and persisting a delivery count for every message received.
// It is the sole owner of every Connector in table: status reads arrive
// here as requests on source instead of statusapi calling Conn.State()
// from an HTTP handler goroutine, so this loop is the only place that ever
// touches a Connector concurrently with the socket itself.
func pollLoop(ctx context.Context, sock *transport.UDPSocket, table *peertable.Table[[]byte, []byte], store *peerstore.Store, api *statusapi.API, source *statusapi.ChannelSource) error {
	buf := make([]byte, 2048)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-snapshotRequests(source):
			req.Resp <- snapshotStatus(table)
			continue
		case req := <-sessionRequests(source):
			status, ok := bySessionStatus(table, req.ID)
			req.Resp <- statusapi.SessionResponse{Status: status, OK: ok}
			continue
		case <-ticker.C:
		}

		n, addr, err := sock.RecvFrom(buf)
		if err != nil && err != transport.ErrWouldBlock {
			return err
		}
		if err == nil && n > 0 {
			entry, registerErr := table.Register(addr)
			if registerErr != nil {
				log.Printf("register %s: %v", addr, registerErr)
				continue
			}

			before := entry.Conn.State()
			_, delivered, handleErr := entry.Conn.HandleIncomingData(sock, buf[:n])
			if handleErr != nil {
				log.Printf("handle datagram from %s: %v", addr, handleErr)
				continue
			}
			if delivered {
				if _, incErr := store.Increment(entry.Session.String(), 1); incErr != nil {
					log.Printf("peerstore increment for %s: %v", addr, incErr)
				}
			}

			after := entry.Conn.State()
			if api != nil && after != before {
				api.Broadcast(statusapi.Event{
					Session: entry.Session,
					Old:     before.String(),
					New:     after.String(),
					At:      time.Now(),
				})
			}
		}

		for _, entry := range table.Snapshot() {
			if err := entry.Conn.Update(sock); err != nil {
				log.Printf("update %s: %v", entry.Conn.BoundAddr(), err)
			}
		}
	}
}

// snapshotRequests returns source's Snapshots channel, or nil if no status
// API is running. A nil channel blocks forever in a select, which simply
// leaves that case disabled rather than panicking on a nil source.
func snapshotRequests(source *statusapi.ChannelSource) chan statusapi.SnapshotRequest {
	if source == nil {
		return nil
	}
	return source.Snapshots
}

// sessionRequests mirrors snapshotRequests for source's Sessions channel.
func sessionRequests(source *statusapi.ChannelSource) chan statusapi.SessionRequest {
	if source == nil {
		return nil
	}
	return source.Sessions
}

// snapshotStatus reads every tracked peer's current status. Only pollLoop
// may call this, since it calls Conn.State() on each Entry.
func snapshotStatus(table *peertable.Table[[]byte, []byte]) []statusapi.PeerStatus {
	entries := table.Snapshot()
	out := make([]statusapi.PeerStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, statusapi.PeerStatusOf(e))
	}
	return out
}

// bySessionStatus reads one tracked peer's current status by session id.
// Only pollLoop may call this, for the same reason as snapshotStatus.
func bySessionStatus(table *peertable.Table[[]byte, []byte], id uuid.UUID) (statusapi.PeerStatus, bool) {
	e, ok := table.BySession(id)
	if !ok {
		return statusapi.PeerStatus{}, false
	}
	return statusapi.PeerStatusOf(e), true
}
