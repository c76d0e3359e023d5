package wireless

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// QRRequestInterval is the minimum spacing between connect-back requests.
const QRRequestInterval = 2 * time.Second

// QRServer is the page a phone opens (usually by scanning a QR code) to ask
// the PC to connect back to it over Wi-Fi.
type QRServer struct {
	runner   Runner
	session  Session
	reporter Reporter
	port     int
	limiter  *rate.Limiter
	log      zerolog.Logger

	mu  sync.Mutex
	srv *http.Server
	url string
}

func NewQRServer(runner Runner, session Session, reporter Reporter, log zerolog.Logger) *QRServer {
	return &QRServer{
		runner:   runner,
		session:  session,
		reporter: reporter,
		port:     DefaultPort,
		limiter:  rate.NewLimiter(rate.Every(QRRequestInterval), 1),
		log:      log.With().Str("module", "qr").Logger(),
	}
}

// Handler returns the router. RemoteAddr is used as-is; forwarding headers
// are ignored so a client cannot point the PC at another host.
func (q *QRServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/c", q.handleConnect)
	return r
}

func (q *QRServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !q.limiter.Allow() {
		http.Error(w, "too many requests, try again in a moment", http.StatusTooManyRequests)
		return
	}

	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || net.ParseIP(remoteIP).To4() == nil {
		http.Error(w, "unsupported client address", http.StatusBadRequest)
		return
	}
	target := fmt.Sprintf("%s:%d", remoteIP, q.port)
	q.log.Info().Str("remote", remoteIP).Msg("Wireless connect request")
	q.report("[*] Wireless connect request from %s", remoteIP)

	// a stale entry for the same address makes adb report "already connected"
	// to a dead transport
	if _, err := q.runner.Disconnect(r.Context(), target); err != nil {
		q.log.Debug().Err(err).Str("target", target).Msg("No previous connection to drop")
	}
	out, err := q.runner.Connect(r.Context(), target)
	if err == nil && ConnectSucceeded(out) {
		err = q.session.Connect(r.Context(), target)
	} else if err == nil {
		err = fmt.Errorf("%w: %s", ErrConnect, strings.TrimSpace(out))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		q.report("[!] Connect-back to %s failed: %v", target, err)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, qrPage, "Connection failed", "error",
			html.EscapeString(err.Error()),
			"Check that wireless debugging is on and the phone is on the same network as the PC.")
		return
	}
	q.report("[+] Connected to %s", target)
	fmt.Fprintf(w, qrPage, "Connected", "success",
		"The PC is now connected to this device.",
		"You can close this page.")
}

func (q *QRServer) report(format string, args ...interface{}) {
	if q.reporter != nil {
		q.reporter.OnLog(fmt.Sprintf(format, args...))
	}
}

// Start listens on addr (":0" picks a free port) and returns the URL to
// encode in the QR code. Calling Start on a running server returns its URL.
func (q *QRServer) Start(addr string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.srv != nil {
		return q.url, nil
	}

	ip := LocalIP()
	if ip == "" {
		return "", fmt.Errorf("could not find local IP")
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	q.url = fmt.Sprintf("http://%s:%d/c", ip, port)
	q.srv = &http.Server{
		Handler:           q.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv := q.srv
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			q.log.Error().Err(err).Msg("QR server stopped")
		}
	}()
	q.log.Info().Str("url", q.url).Msg("QR server listening")
	return q.url, nil
}

// Stop shuts the server down if it is running.
func (q *QRServer) Stop(ctx context.Context) error {
	q.mu.Lock()
	srv := q.srv
	q.srv, q.url = nil, ""
	q.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// LocalIP returns the first non-loopback IPv4 address of this machine.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}

const qrPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>KeyBridge</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; text-align: center; padding: 48px 16px; background: #f5f5f5; }
.success h1 { color: #2e7d32; }
.error h1 { color: #c62828; }
p.hint { color: #666; }
</style>
</head>
<body>
<div class="%[2]s">
<h1>%[1]s</h1>
<p>%[3]s</p>
<p class="hint">%[4]s</p>
</div>
</body>
</html>
`
