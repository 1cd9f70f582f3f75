package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"MuseFM/core/auth"
	"MuseFM/core/player"
	"MuseFM/logger"
	"MuseFM/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var playerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// playerMessage is the inbound frame: user intents and media element events
// share one envelope, discriminated by Type.
type playerMessage struct {
	Type     string  `json:"type"`
	TrackID  int64   `json:"trackId,omitempty"`
	Queue    []int64 `json:"queue,omitempty"`
	Offset   float64 `json:"offset,omitempty"`
	Delta    float64 `json:"delta,omitempty"`
	On       bool    `json:"on,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Message  string  `json:"message,omitempty"`
	Query    string  `json:"query,omitempty"`
}

// playerFrame is the outbound frame: element commands, status pushes and
// search results.
type playerFrame struct {
	Type    string      `json:"type"`
	Action  string      `json:"action,omitempty"`
	Src     string      `json:"src,omitempty"`
	Value   float64     `json:"value,omitempty"`
	Muted   bool        `json:"muted,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// jsonWriter is the slice of *websocket.Conn the transport writes through.
type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// wsMediaElement drives the client's audio element by sending commands over
// the socket. Writes are serialized; the connection allows one writer.
type wsMediaElement struct {
	mu   *sync.Mutex
	conn jsonWriter
}

func (e *wsMediaElement) send(frame playerFrame) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.WriteJSON(frame); err != nil {
		logger.Debug("player command write failed", logger.ErrorField(err))
	}
}

func (e *wsMediaElement) Load(src string) {
	e.send(playerFrame{Type: "command", Action: "load", Src: src})
}
func (e *wsMediaElement) Play()  { e.send(playerFrame{Type: "command", Action: "play"}) }
func (e *wsMediaElement) Pause() { e.send(playerFrame{Type: "command", Action: "pause"}) }
func (e *wsMediaElement) Seek(offsetSeconds float64) {
	e.send(playerFrame{Type: "command", Action: "seek", Value: offsetSeconds})
}
func (e *wsMediaElement) SetVolume(volume float64) {
	e.send(playerFrame{Type: "command", Action: "volume", Value: volume})
}
func (e *wsMediaElement) SetMuted(muted bool) {
	e.send(playerFrame{Type: "command", Action: "mute", Muted: muted})
}

// PlayerSocketHandler owns one playback session per connection. The client
// hosts a bare audio element; intents and element events flow up, commands
// and status snapshots flow down.
func (h *APIHandler) PlayerSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := playerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("player websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// Query params because websocket clients cannot set headers. clientId
	// keys the persisted snapshot; a fresh one gets no restore.
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	var userID int64
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		if claims, err := auth.ParseToken(token); err == nil {
			userID = claims.UserID
		}
	}

	var writeMu sync.Mutex
	element := &wsMediaElement{mu: &writeMu, conn: conn}

	session := player.NewSession(
		player.Config{
			ReadyTimeout:     h.cfg.StreamReadyTimeout,
			SnapshotInterval: h.cfg.SnapshotInterval,
		},
		element,
		func(trackID int64) string {
			return "/api/songs/" + strconv.FormatInt(trackID, 10) + "/stream"
		},
		h.trackRepo,
		h.recentRepo,
		h.snapshots,
		clientID,
		userID,
	)

	logger.Info("player session opened",
		logger.String("clientId", clientID),
		logger.Int64("userId", userID))

	pushStatus := func() {
		pushPlayerStatus(conn, &writeMu, session)
	}

	// Initial hello carries the client id so the browser can persist it.
	writeMu.Lock()
	_ = conn.WriteJSON(playerFrame{Type: "hello", Payload: map[string]string{"clientId": clientID}})
	writeMu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go h.playerPingLoop(conn, &writeMu, done)

	search := newSearchDebouncer(h.cfg.SearchDebounce, func(query string) {
		results, err := h.trackRepo.SearchTracks(query, searchResultLimit)
		if err != nil {
			logger.Warn("catalog search failed",
				logger.String("query", query),
				logger.ErrorField(err))
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(playerFrame{Type: "search_results", Payload: results}); err != nil {
			logger.Debug("search results write failed", logger.ErrorField(err))
		}
	})
	defer search.Stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("player websocket read failed", logger.ErrorField(err))
			}
			logger.Info("player session closed", logger.String("clientId", clientID))
			return
		}

		var msg playerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("malformed player message", logger.ErrorField(err))
			continue
		}

		switch msg.Type {
		// --- user intents ---
		case "play_track":
			track, err := h.trackRepo.GetTrackByID(msg.TrackID)
			if err != nil {
				logger.Warn("play intent for unknown track",
					logger.Int64("trackId", msg.TrackID))
				continue
			}
			session.LoadTrack(track, h.loadQueue(msg.Queue))
		case "set_queue":
			session.SetQueue(h.loadQueue(msg.Queue))
		case "toggle":
			if err := session.TogglePlayPause(); err != nil {
				logger.Debug("toggle ignored", logger.ErrorField(err))
			}
		case "next":
			session.Next()
		case "previous":
			session.Previous()
		case "seek":
			session.Seek(msg.Offset)
		case "skip":
			session.SkipRelative(msg.Delta)
		case "set_shuffle":
			session.SetShuffle(msg.On)
		case "cycle_repeat":
			session.CycleRepeatMode()
		case "set_volume":
			session.SetVolume(msg.Volume)
		case "toggle_mute":
			session.ToggleMute()
		case "restore":
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := session.Restore(ctx); err != nil {
				logger.Warn("session restore failed", logger.ErrorField(err))
			}
			cancel()
		case "search":
			search.Trigger(msg.Query)
			continue

		// --- media element events ---
		case "ready":
			session.OnReady(msg.TrackID)
		case "metadata":
			session.OnMetadata(msg.TrackID, msg.Duration)
		case "playing":
			session.OnPlaying(msg.TrackID)
		case "play_blocked":
			session.OnPlayBlocked(msg.TrackID)
		case "media_error":
			session.OnMediaError(msg.TrackID, msg.Message)
		case "ended":
			session.OnEnded(msg.TrackID)
		case "time_update":
			session.OnTimeUpdate(msg.TrackID, msg.Offset)
			// Progress ticks arrive constantly; no status echo.
			continue

		default:
			logger.Warn("unknown player message type", logger.String("type", msg.Type))
			continue
		}

		pushStatus()
	}
}

// pushPlayerStatus sends a status snapshot. The snapshot is taken BEFORE
// writeMu is acquired: session timers issue element commands while holding
// session.mu, and those commands take writeMu — calling into the session
// under writeMu would invert that order and deadlock.
func pushPlayerStatus(w jsonWriter, writeMu *sync.Mutex, session *player.Session) {
	status := session.Status()
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := w.WriteJSON(playerFrame{Type: "status", Payload: status}); err != nil {
		logger.Debug("status push failed", logger.ErrorField(err))
	}
}

// loadQueue resolves queue track ids, dropping ids that no longer exist.
func (h *APIHandler) loadQueue(ids []int64) []*model.Track {
	if len(ids) == 0 {
		return nil
	}
	tracks := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		track, err := h.trackRepo.GetTrackByID(id)
		if err != nil {
			logger.Debug("dropping missing track from queue", logger.Int64("trackId", id))
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks
}

func (h *APIHandler) playerPingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// searchDebouncer collapses bursts of search intents into one catalog query
// per quiet period.
type searchDebouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	run   func(query string)
}

func newSearchDebouncer(delay time.Duration, run func(query string)) *searchDebouncer {
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	return &searchDebouncer{delay: delay, run: run}
}

// Trigger schedules the query, replacing any pending one. Blank queries
// cancel the pending search.
func (d *searchDebouncer) Trigger(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	d.timer = time.AfterFunc(d.delay, func() { d.run(query) })
}

// Stop cancels any pending search.
func (d *searchDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
