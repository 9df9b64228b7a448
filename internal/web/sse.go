package web

import (
	"net/http"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/navikt/myrooms/internal/logging"
	"github.com/navikt/myrooms/internal/utils"
)

// UpdateEvent is the SSE event name that makes the page reload its room list
const UpdateEvent = "update"

// SSEManager keeps one event stream per browser session. The stream of a
// session replays its events to late subscribers, so an update that lands
// before the page has connected is still delivered.
type SSEManager struct {
	server *sse.Server
	logger *zap.SugaredLogger
}

// NewSSEManager creates a new server-sent events manager
func NewSSEManager(logger *zap.SugaredLogger) *SSEManager {
	if logger == nil {
		logger = logging.Nop()
	}

	server := sse.New()
	server.AutoStream = false
	server.AutoReplay = true
	server.Headers = map[string]string{
		"Cache-Control":     "no-cache, no-transform",
		"X-Accel-Buffering": "no", // Disable nginx proxy buffering
	}

	return &SSEManager{
		server: server,
		logger: logger,
	}
}

// ResetStream replaces the stream of a session with an empty one, dropping
// subscribers and replay history of the previous page
func (m *SSEManager) ResetStream(sessionID string) {
	if m.server.StreamExists(sessionID) {
		m.server.RemoveStream(sessionID)
	}
	m.server.CreateStream(sessionID)
}

// EnsureStream creates the stream of a session if it does not exist
func (m *SSEManager) EnsureStream(sessionID string) {
	if !m.server.StreamExists(sessionID) {
		m.server.CreateStream(sessionID)
	}
}

// RemoveStream closes the stream of a session and disconnects its subscribers
func (m *SSEManager) RemoveStream(sessionID string) {
	if m.server.StreamExists(sessionID) {
		m.server.RemoveStream(sessionID)
		m.logger.Debugf("Removed SSE stream for session %s", utils.SanitizeLogString(sessionID))
	}
}

// HasStream reports whether a session has a stream
func (m *SSEManager) HasStream(sessionID string) bool {
	return m.server.StreamExists(sessionID)
}

// NotifyViewUpdate tells the page of a session to reload its room list.
// Sessions without a stream are ignored.
func (m *SSEManager) NotifyViewUpdate(sessionID string) {
	if !m.server.StreamExists(sessionID) {
		return
	}

	m.logger.Debugf("Publishing SSE update event for session %s", utils.SanitizeLogString(sessionID))
	m.server.Publish(sessionID, &sse.Event{
		Event: []byte(UpdateEvent),
		Data:  []byte("Update available"), // htmx only uses the trigger
	})
}

// ServeSession streams the events of a session to the client
func (m *SSEManager) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	m.EnsureStream(sessionID)

	m.logger.Debugf("SSE client connected for session %s from %s (protocol %s)",
		utils.SanitizeLogString(sessionID), utils.SanitizeLogString(r.RemoteAddr), r.Proto)

	// The stream ID is never taken from the client
	req := r.Clone(r.Context())
	query := req.URL.Query()
	query.Set("stream", sessionID)
	req.URL.RawQuery = query.Encode()

	m.server.ServeHTTP(w, req)

	m.logger.Debugf("SSE client disconnected for session %s", utils.SanitizeLogString(sessionID))
}

// Shutdown closes all streams and disconnects every client
func (m *SSEManager) Shutdown() {
	m.server.Close()
}
