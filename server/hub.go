package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"gridkernel/host"
)

const writeWait = 5 * time.Second

// ErrHubClosed is returned for connections arriving after Close
var ErrHubClosed = errors.New("hub closed")

type peer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex // one writer at a time
}

func (p *peer) write(msg *websocket.PreparedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WritePreparedMessage(msg)
}

func (p *peer) writeJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeJSONLocked(v)
}

func (p *peer) writeJSONLocked(v any) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteJSON(v)
}

// Hub owns the browser connections: it sends the hello and latest frame on
// connect, answers inbound queries and fans tick frames out to everyone.
type Hub struct {
	client *host.Client
	engine *Engine
	topo   *Topology
	log    *zap.Logger

	curveIntensity float64
	curveSegments  int

	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[*websocket.Conn]*peer
	closed bool
	wg     sync.WaitGroup
}

// NewHub wires a hub over a loaded client
func NewHub(client *host.Client, engine *Engine, topo *Topology, curveIntensity float64, curveSegments int, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		client:         client,
		engine:         engine,
		topo:           topo,
		log:            log,
		curveIntensity: curveIntensity,
		curveSegments:  curveSegments,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers: make(map[*websocket.Conn]*peer),
	}
}

// Handler serves /ws, /healthz and /api/frame
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthz", h.serveHealth)
	mux.HandleFunc("/api/frame", h.serveFrame)
	return mux
}

func (h *Hub) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"backend": h.client.Backend(),
		"clients": h.Clients(),
		"clock":   h.engine.Clock().String(),
	})
}

func (h *Hub) serveFrame(w http.ResponseWriter, r *http.Request) {
	frame := h.engine.Latest()
	if frame == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(frame)
}

// register adds a peer with its write lock held, so no broadcast can
// overtake the greeting
func (h *Hub) register(conn *websocket.Conn) (*peer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	p := &peer{id: uuid.NewString(), conn: conn}
	p.mu.Lock()
	h.peers[conn] = p
	h.wg.Add(1)
	return p, nil
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.conn)
	h.mu.Unlock()
	p.conn.Close()
	h.wg.Done()
}

// ServeWS upgrades the request and runs the read loop for one client
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	p, err := h.register(conn)
	if err != nil {
		conn.Close()
		return
	}
	defer h.unregister(p)

	log := h.log.With(zap.String("client", p.id))
	log.Info("client connected", zap.String("remote", r.RemoteAddr))

	err = h.greet(p)
	p.mu.Unlock()
	if err != nil {
		log.Warn("hello failed", zap.Error(err))
		return
	}

	for {
		var msg Inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			break
		}
		reply := h.handle(msg)
		if reply == nil {
			continue
		}
		if err := p.writeJSON(reply); err != nil {
			log.Warn("reply failed", zap.Error(err))
			break
		}
	}
	log.Info("client disconnected")
}

func (h *Hub) greet(p *peer) error {
	hello := HelloFrame{
		Type:     FrameHello,
		ClientID: p.id,
		Backend:  h.client.Backend(),
		Nodes:    len(h.topo.Nodes),
		Edges:    len(h.topo.Edges),
	}
	if err := p.writeJSONLocked(hello); err != nil {
		return err
	}
	if frame := h.engine.Latest(); frame != nil {
		return p.writeJSONLocked(frame)
	}
	return nil
}

func errorFrame(msg string) *ErrorFrame {
	return &ErrorFrame{Type: FrameError, Message: msg}
}

// handle answers one inbound message. A nil reply means nothing to send.
func (h *Hub) handle(msg Inbound) any {
	switch msg.Type {
	case MsgViewport:
		if msg.Viewport == nil {
			return errorFrame("viewport message without viewport")
		}
		clusters, err := h.client.GetClusters(msg.Viewport.Bounds(), msg.Viewport.Zoom)
		if err != nil {
			return errorFrame(err.Error())
		}
		return newClustersFrame(msg.Viewport.Zoom, clusters)

	case MsgPath:
		if msg.Path == nil {
			return errorFrame("path message without path")
		}
		return h.path(msg.Path.From, msg.Path.To)

	case MsgClock:
		if msg.Clock == nil {
			return errorFrame("clock message without clock")
		}
		if err := h.engine.SetClock(msg.Clock.Hour, msg.Clock.Minute); err != nil {
			return errorFrame(err.Error())
		}
		return nil

	case MsgSpeed:
		if msg.Speed == nil {
			return errorFrame("speed message without minutesPerTick")
		}
		if err := h.engine.SetSpeed(*msg.Speed); err != nil {
			return errorFrame(err.Error())
		}
		return nil

	case MsgExpand:
		if msg.Expand == nil {
			return errorFrame("expand message without expand")
		}
		return h.expand(*msg.Expand)
	}
	return errorFrame("unknown message type " + msg.Type)
}

// path finds a route and bends one curve along every hop
func (h *Hub) path(from, to string) any {
	res, err := h.client.FindPath(from, to)
	if err != nil {
		return errorFrame(err.Error())
	}
	frame := &PathFrame{Type: FramePath, From: from, To: to, Nodes: []string{}, Segments: [][][2]float64{}}
	if res == nil {
		return frame
	}
	frame.Found = true
	frame.Nodes = res.Nodes
	frame.Cost = res.Cost
	for i := 1; i < len(res.Nodes); i++ {
		a, okA := h.topo.Node(res.Nodes[i-1])
		b, okB := h.topo.Node(res.Nodes[i])
		if !okA || !okB {
			continue
		}
		curve, err := h.client.GenerateCurve(a.Position(), b.Position(), h.curveIntensity, h.curveSegments)
		if err != nil {
			return errorFrame(err.Error())
		}
		if len(curve) == 0 {
			curve = []orb.Point{a.Position(), b.Position()}
		}
		frame.Segments = append(frame.Segments, polyline(curve))
	}
	return frame
}

// expand reports where a cluster splits and what it contains. Point ids are
// topology indices, so leaves map back to node ids.
func (h *Hub) expand(q Expand) any {
	zoom, err := h.client.ExpansionZoom(q.ClusterID, q.Zoom)
	if err != nil {
		return errorFrame(err.Error())
	}
	children, err := h.client.Children(q.ClusterID)
	if err != nil {
		return errorFrame(err.Error())
	}
	leaves, err := h.client.Leaves(q.ClusterID, q.Limit, 0)
	if err != nil {
		return errorFrame(err.Error())
	}
	frame := &ExpandFrame{
		Type:          FrameExpand,
		ClusterID:     q.ClusterID,
		ExpansionZoom: zoom,
		Children:      clusterFrames(children),
		Leaves:        make([]LeafFrame, len(leaves)),
	}
	for i, p := range leaves {
		frame.Leaves[i] = LeafFrame{ID: p.ID, Lat: p.Lat, Lng: p.Lng}
		if p.ID >= 0 && p.ID < int64(len(h.topo.Nodes)) {
			frame.Leaves[i].Node = h.topo.Nodes[p.ID].ID
		}
	}
	return frame
}

// Broadcast sends v to every connected client, dropping the ones that fail
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode broadcast", zap.Error(err))
		return
	}
	msg, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		h.log.Error("prepare broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		if err := p.write(msg); err != nil {
			h.log.Warn("broadcast failed, dropping client", zap.String("client", p.id), zap.Error(err))
			// the read loop sees the closed conn and unregisters
			p.conn.Close()
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every client, refuses new ones and waits for the
// read loops to finish
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for conn, p := range h.peers {
		p.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		p.mu.Unlock()
		conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
