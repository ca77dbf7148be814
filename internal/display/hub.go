package display

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/store"
	"barborsa/internal/tenant"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64
)

// upgrader configures the WebSocket upgrade parameters. Screens live on the
// venue's LAN, so all origins are accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected screen.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans committed store changes out to every connected display. A screen
// gets the full priced board on connect and incremental updates afterwards.
type Hub struct {
	store  store.Store
	scope  tenant.Scope
	logger zerolog.Logger

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub wires a hub for one venue.
func NewHub(st store.Store, scope tenant.Scope, logger zerolog.Logger) *Hub {
	return &Hub{
		store:      st,
		scope:      scope,
		logger:     logger.With().Str("component", "display").Str("venue", scope.Venue()).Logger(),
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run subscribes to the venue's product and system collections and pumps
// changes to connected screens until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	unsubProducts, err := h.store.Subscribe(ctx, h.scope.Products(), h.onProductChange)
	if err != nil {
		return err
	}
	defer unsubProducts()

	unsubSystem, err := h.store.Subscribe(ctx, h.scope.SystemData(), h.onSystemChange)
	if err != nil {
		return err
	}
	defer unsubSystem()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("total_clients", total).Msg("display connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Int("total_clients", total).Msg("display disconnected")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow screen: drop the frame rather than block the hub.
					h.logger.Warn().Msg("dropping frame for slow display")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// onProductChange translates a committed product write into a board row frame.
func (h *Hub) onProductChange(path string, doc store.Document) {
	if len(doc.Fields) == 0 {
		_, id := store.Split(path)
		h.push(map[string]any{"type": "PRODUCT_REMOVED", "productId": id})
		return
	}
	p, err := catalog.Decode(doc)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", path).Msg("skipping undecodable product change")
		return
	}
	h.push(map[string]any{
		"type":    "PRODUCT_UPDATE",
		"product": boardRow(p),
	})
}

// onSystemChange forwards ticker and event markers verbatim.
func (h *Hub) onSystemChange(path string, doc store.Document) {
	if path != h.scope.Commands() || len(doc.Fields) == 0 {
		return
	}
	h.push(doc.Fields)
}

func (h *Hub) push(payload map[string]any) {
	msg, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal display frame")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Msg("broadcast queue full, dropping frame")
	}
}

// HandleWS upgrades the request and registers the screen.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register <- c
	h.sendBoard(r.Context(), c)

	go c.writePump()
	go c.readPump()
}

// sendBoard pushes the full priced board so a fresh screen renders
// immediately instead of waiting for the next change.
func (h *Hub) sendBoard(ctx context.Context, c *client) {
	docs, err := h.store.GetSnapshot(ctx, h.scope.Products())
	if err != nil {
		h.logger.Error().Err(err).Msg("snapshot for display board")
		return
	}
	products, err := catalog.DecodeAll(docs)
	if err != nil {
		h.logger.Error().Err(err).Msg("decode display board")
		return
	}

	rows := make([]map[string]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, boardRow(p))
	}
	msg, err := json.Marshal(map[string]any{
		"type":     "BOARD_SNAPSHOT",
		"products": rows,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// boardRow shapes one product for the screens, including the movement
// decoration the board renders next to the price.
func boardRow(p catalog.Product) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"name":       p.Name,
		"type":       p.Type,
		"price":      p.Price,
		"startPrice": p.StartPrice,
		"stock":      p.Stock,
		"isLucky":    p.IsLucky,
		"trend":      Trend(p.Price, p.StartPrice),
		"changePct":  ChangePct(p.Price, p.StartPrice).String(),
	}
}

// readPump drains the connection so close frames and pongs are processed.
// Screens never send application messages.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("unexpected display close")
			}
			return
		}
	}
}

// writePump pumps frames from the hub to the connection with keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
