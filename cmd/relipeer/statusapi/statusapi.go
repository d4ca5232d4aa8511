/*
File Name:  statusapi.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

statusapi exposes a small HTTP status surface over the peertable, the way
webapi/API.go exposes /status and /status/peers over the full Backend:
GET /peers and GET /peers/{id} for polling clients, and a /events websocket
for ones that want to be pushed state changes as they happen.

Every Connector is single-owner (see connector.go's doc comment), so the
HTTP handlers here never touch one directly. Instead they go through a
ChannelSource, which turns each read into a request/response pair sent over
a channel to whatever goroutine already owns the peertable's Connectors —
typically the same one driving the socket poll loop — so Conn.State() is
still only ever called from that one goroutine.
*/
package statusapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Trangar/reliconn/peertable"
)

// Upgrader is used for the /events websocket endpoint. It allows all
// origins, matching webapi.WSUpgrader's default.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PeerStatus is the JSON shape of one tracked peer.
type PeerStatus struct {
	Session     uuid.UUID `json:"session"`
	Address     string    `json:"address"`
	Fingerprint string    `json:"fingerprint"`
	State       string    `json:"state"`
}

// PeerStatusOf reads one Entry's current status, including Conn.State().
// Call it only from the goroutine that already owns Entry.Conn — the same
// one that calls Update/HandleIncomingData on it — never from an HTTP
// handler goroutine. It exists so that goroutine can answer ChannelSource
// requests without statusapi needing to know the Entry's payload types.
func PeerStatusOf[TSend, TReceive any](e *peertable.Entry[TSend, TReceive]) PeerStatus {
	return PeerStatus{
		Session:     e.Session,
		Address:     e.Conn.BoundAddr().String(),
		Fingerprint: fingerprintHex(e.Fingerprint),
		State:       e.Conn.State().String(),
	}
}

// Event is broadcast to every websocket subscriber whenever a peer's State
// changes.
type Event struct {
	Session uuid.UUID `json:"session"`
	Old     string    `json:"old"`
	New     string    `json:"new"`
	At      time.Time `json:"at"`
}

// errPeerNotFound is the JSON body handlePeer writes when the session id
// in the URL does not match any tracked peer.
var errPeerNotFound = map[string]string{"error": "peer not found"}

// lookup is the subset of ChannelSource the HTTP handlers depend on. It
// never touches a Connector itself, so it is safe to call from any
// goroutine; only whoever answers the requests it sends needs to take
// care about that.
type lookup interface {
	snapshot() []PeerStatus
	bySession(id uuid.UUID) (PeerStatus, bool)
}

// SnapshotRequest is sent on ChannelSource.Snapshots. Whoever owns the
// Connectors must reply on Resp exactly once, with one PeerStatus per
// currently tracked peer.
type SnapshotRequest struct {
	Resp chan<- []PeerStatus
}

// SessionRequest is sent on ChannelSource.Sessions. Whoever owns the
// Connectors must reply on Resp exactly once.
type SessionRequest struct {
	ID   uuid.UUID
	Resp chan<- SessionResponse
}

// SessionResponse answers a SessionRequest.
type SessionResponse struct {
	Status PeerStatus
	OK     bool
}

// ChannelSource is a lookup that forwards every read as a request/response
// pair to whatever goroutine owns the peertable's Connectors, rather than
// calling Conn.State() from the calling goroutine itself. The owning
// goroutine must select on Snapshots and Sessions alongside its own work
// and answer each request as it arrives; see cmd/relipeer's pollLoop for
// the reference implementation.
type ChannelSource struct {
	Snapshots chan SnapshotRequest
	Sessions  chan SessionRequest
}

// NewChannelSource builds an unbuffered ChannelSource. Both channels must
// be serviced by the owning goroutine, or every HTTP request against the
// resulting API blocks forever.
func NewChannelSource() *ChannelSource {
	return &ChannelSource{
		Snapshots: make(chan SnapshotRequest),
		Sessions:  make(chan SessionRequest),
	}
}

func (c *ChannelSource) snapshot() []PeerStatus {
	resp := make(chan []PeerStatus)
	c.Snapshots <- SnapshotRequest{Resp: resp}
	return <-resp
}

func (c *ChannelSource) bySession(id uuid.UUID) (PeerStatus, bool) {
	resp := make(chan SessionResponse)
	c.Sessions <- SessionRequest{ID: id, Resp: resp}
	r := <-resp
	return r.Status, r.OK
}

// API serves the status endpoints and fans out state-change events to
// connected websocket clients.
type API struct {
	Router *mux.Router

	table lookup

	subsMu sync.Mutex
	subs   map[*websocket.Conn]chan Event
}

// New builds an API that answers status queries by sending requests on
// source, which must be serviced by the goroutine that owns the
// peertable's Connectors. Register the returned API's Router with an
// *http.Server, or use it directly as an http.Handler.
func New(source *ChannelSource) *API {
	api := &API{
		Router: mux.NewRouter(),
		table:  source,
		subs:   make(map[*websocket.Conn]chan Event),
	}
	api.Router.HandleFunc("/peers", api.handlePeers).Methods("GET")
	api.Router.HandleFunc("/peers/{id}", api.handlePeer).Methods("GET")
	api.Router.HandleFunc("/events", api.handleEvents).Methods("GET")
	return api
}

func (api *API) handlePeers(w http.ResponseWriter, r *http.Request) {
	out := api.table.snapshot()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *API) handlePeer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	status, ok := api.table.bySession(id)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errPeerNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (api *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch := make(chan Event, 16)
	api.subsMu.Lock()
	api.subs[conn] = ch
	api.subsMu.Unlock()

	defer func() {
		api.subsMu.Lock()
		delete(api.subs, conn)
		api.subsMu.Unlock()
		close(ch)
		conn.Close()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Broadcast pushes ev to every currently connected websocket subscriber,
// dropping it for any subscriber whose channel is full rather than
// blocking the caller.
func (api *API) Broadcast(ev Event) {
	api.subsMu.Lock()
	defer api.subsMu.Unlock()
	for _, ch := range api.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func fingerprintHex(fp [32]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(fp)*2)
	for i, b := range fp {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
