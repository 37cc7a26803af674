package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oakmoss/telnetcore"
	"github.com/oakmoss/telnetcore/internal/corelog"
	"github.com/oakmoss/telnetcore/option"
)

// wsHandshakeTimeout bounds the HTTP upgrade, mirroring the default used
// by the reference WebSocket server in the example pack.
const wsHandshakeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	HandshakeTimeout: wsHandshakeTimeout,
	// Telnet-over-WebSocket clients are expected to be trusted MUD
	// clients embedding a browser view, not arbitrary third-party pages;
	// origin checking is the embedder's concern (wrap Handler with its
	// own http.Handler that validates Origin before delegating here).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a *websocket.Conn, which is message-framed, to
// io.ReadWriteCloser, which conn.Connection requires. Each Write call
// becomes one binary WebSocket message; Read drains one message's bytes
// at a time, buffering any leftover between calls.
type wsConn struct {
	ws *websocket.Conn

	mu      sync.Mutex
	leftover []byte
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.leftover) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.leftover = data
	}
	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// Handler returns an http.HandlerFunc that upgrades incoming requests to
// WebSocket connections and adopts each as a telnetcore connection with
// option.TransportWebSocket. Mount it on whatever path the embedder
// chooses (e.g. "/telnet").
func Handler(mgr *telnetcore.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			corelog.Errorf("transport: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
			return
		}
		mgr.AdoptConnection(&wsConn{ws: ws}, option.TransportWebSocket)
	}
}

// ListenWebSocket starts an HTTP server on ip:port serving path with
// Handler(mgr), and accepts connections in the background. The returned
// *http.Server is not tracked by Manager; the caller owns its lifetime
// and should call Shutdown or Close on it.
func ListenWebSocket(mgr *telnetcore.Manager, ip string, port int, path string) (*http.Server, error) {
	addr := fmt.Sprintf("%s:%d", ip, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(path, Handler(mgr))
	srv := &http.Server{Addr: addr, Handler: mux}

	corelog.Infof("websocket telnet listener bound on %s%s", addr, path)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			corelog.Errorf("transport: websocket server on %s stopped: %v", addr, err)
		}
	}()
	return srv, nil
}
