package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"realty/site/internal/services"
	"realty/site/internal/session"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 8 * 1024
	wsSendBuffer     = 256
)

// AdminSessionHandler serves the admin dashboard WebSocket. Every connection is one
// session with its own workflow state and notifications.
type AdminSessionHandler struct {
	store    services.IInquiryStore
	upgrader websocket.Upgrader
}

// NewAdminSessionHandler creates the handler. allowedOrigins may contain "*".
func NewAdminSessionHandler(store services.IInquiryStore, allowedOrigins []string) *AdminSessionHandler {
	return &AdminSessionHandler{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// adminConn pumps session events to one WebSocket.
type adminConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (a *adminConn) stop() {
	a.once.Do(func() { close(a.done) })
}

// enqueue never blocks; a client that cannot keep up is disconnected.
func (a *adminConn) enqueue(e session.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("Error marshaling admin session event %s: %v", e.Type, err)
		return
	}
	select {
	case <-a.done:
	case a.send <- payload:
	default:
		log.Println("Admin session send buffer full; disconnecting client")
		a.stop()
	}
}

// Serve handles GET /v1/admin/session.
func (h *AdminSessionHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		log.Printf("Admin session upgrade error: %v", err)
		return
	}
	ac := &adminConn{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}

	// Bounded by the connection rather than the hijacked request.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := session.Open(ctx, h.store, ac.enqueue)
	if err != nil {
		log.Printf("Failed to open admin session: %v", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "inquiries unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}
	log.Println("Admin session opened")

	go ac.writePump()
	ac.readPump(sess)

	sess.Close()
	ac.stop()
	log.Println("Admin session closed")
}

func (a *adminConn) readPump(sess *session.Session) {
	a.conn.SetReadLimit(wsMaxMessageSize)
	_ = a.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd session.Command
		if err := a.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Admin session read error: %v", err)
			}
			return
		}
		select {
		case <-a.done:
			return
		default:
		}
		if err := sess.Handle(cmd); err != nil {
			a.enqueue(session.Event{Type: session.EventError, Data: gin.H{"op": cmd.Op, "error": err.Error()}})
		}
	}
}

func (a *adminConn) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		a.conn.Close()
	}()
	for {
		select {
		case message := <-a.send:
			_ = a.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := a.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				a.stop()
				return
			}
		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				a.stop()
				return
			}
		case <-a.done:
			_ = a.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		}
	}
}
