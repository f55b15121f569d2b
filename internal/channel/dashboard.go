package channel

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/careloop/eldermed/internal/bus"
	"github.com/careloop/eldermed/internal/config"
)

//go:embed static
var staticFiles embed.FS

const dashboardChannelName = "dashboard"

// wsMessage is the frame exchanged with the browser. Inbound frames carry a
// chat message or an alert action (take, dismiss); outbound frames carry
// companion replies and alert state.
type wsMessage struct {
	Type         string          `json:"type"`
	Content      string          `json:"content,omitempty"`
	MedicationID string          `json:"medication_id,omitempty"`
	Alert        *bus.AlertEvent `json:"alert,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

// DashboardChannel serves the in-home tablet UI: a chat pane plus the alert
// banner. Alert state is pushed to every connected client.
type DashboardChannel struct {
	BaseChannel
	host    string
	port    int
	server  *http.Server
	clients sync.Map
	nextID  atomic.Int64
}

func NewDashboardChannel(cfg config.DashboardConfig, gwCfg config.GatewayConfig, b *bus.MessageBus) (*DashboardChannel, error) {
	port := gwCfg.Port
	if port == 0 {
		port = config.DefaultPort
	}

	ch := &DashboardChannel{
		BaseChannel: NewBaseChannel(dashboardChannelName, b, cfg.AllowFrom),
		host:        gwCfg.Host,
		port:        port,
	}
	return ch, nil
}

func (d *DashboardChannel) Start(ctx context.Context) error {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("embed static fs: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", d.handleWS)

	d.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.host, d.port),
		Handler: mux,
	}

	go func() {
		log.Printf("[dashboard] listening on %s", d.server.Addr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[dashboard] server error: %v", err)
		}
	}()

	return nil
}

func (d *DashboardChannel) handleWS(wr http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(wr, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[dashboard] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("dashboard-%d", d.nextID.Add(1))
	client := &wsClient{conn: conn, id: clientID}
	d.clients.Store(clientID, client)
	log.Printf("[dashboard] client connected: %s", clientID)

	defer func() {
		d.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[dashboard] client disconnected: %s", clientID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if !d.IsAllowed(clientID) {
			log.Printf("[dashboard] rejected message from %s", clientID)
			continue
		}

		d.handleFrame(clientID, msg)
	}
}

func (d *DashboardChannel) handleFrame(clientID string, msg wsMessage) {
	inbound := bus.InboundMessage{
		Channel:   dashboardChannelName,
		SenderID:  clientID,
		ChatID:    clientID,
		Timestamp: time.Now(),
	}

	switch msg.Type {
	case "message":
		if msg.Content == "" {
			return
		}
		inbound.Content = msg.Content
	case "take", "dismiss":
		if msg.MedicationID == "" {
			return
		}
		inbound.Metadata = map[string]any{
			"action":        msg.Type,
			"medication_id": msg.MedicationID,
		}
	default:
		return
	}

	d.bus.Inbound <- inbound
}

func (d *DashboardChannel) Send(msg bus.OutboundMessage) error {
	data, err := json.Marshal(wsMessage{
		Type:    "message",
		Content: msg.Content,
	})
	if err != nil {
		return err
	}

	client, ok := d.clients.Load(msg.ChatID)
	if !ok {
		// Broadcast to all clients if no specific target
		d.broadcast(data)
		return nil
	}

	c := client.(*wsClient)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// SendAlert pushes alert state to every connected client so each screen in
// the house shows the same banner.
func (d *DashboardChannel) SendAlert(ev bus.AlertEvent) {
	data, err := json.Marshal(wsMessage{
		Type:  "alert",
		Alert: &ev,
	})
	if err != nil {
		log.Printf("[dashboard] marshal alert: %v", err)
		return
	}
	d.broadcast(data)
}

func (d *DashboardChannel) broadcast(data []byte) {
	d.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.conn.Write(ctx, websocket.MessageText, data)
		return true
	})
}

func (d *DashboardChannel) Stop() error {
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			log.Printf("[dashboard] shutdown error: %v", err)
		}
	}
	d.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
	log.Printf("[dashboard] stopped")
	return nil
}
