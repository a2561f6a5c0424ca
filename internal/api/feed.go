package api

import (
	"net/http"
	"time"

	"SignalScanner/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// feedMessage is one frame of the live feed.
type feedMessage struct {
	Type      string           `json:"type"` // snapshot | signals | portfolio
	Signals   []model.Signal   `json:"signals,omitempty"`
	Portfolio *model.Portfolio `json:"portfolio,omitempty"`
	TS        time.Time        `json:"ts"`
}

// handleFeed streams new signals and portfolio changes. The store is polled
// every FeedInterval; the scanner is never contacted.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m feedMessage) bool {
		m.TS = s.Now().UTC()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(m) == nil
	}

	now := s.Now()
	signals, err := s.Recorder.RecentSignals(ctx, now.Add(-24*time.Hour), 50)
	if err != nil {
		s.log.Error().Err(err).Msg("feed snapshot")
		return
	}
	portfolio, _ := s.Recorder.LoadPortfolio(ctx)
	if !send(feedMessage{Type: "snapshot", Signals: nonNil(signals), Portfolio: portfolio}) {
		return
	}
	cursor := now
	if len(signals) > 0 {
		cursor = signals[0].Timestamp
	}
	seen := map[string]time.Time{}
	for _, sig := range signals {
		seen[sig.ID] = sig.Timestamp
	}

	interval := s.FeedInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	poll := time.NewTicker(interval)
	ping := time.NewTicker(30 * time.Second)
	defer poll.Stop()
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
			fresh, err := s.Recorder.RecentSignals(ctx, cursor, 200)
			if err != nil {
				s.log.Warn().Err(err).Msg("feed poll")
				continue
			}
			var out []model.Signal
			for i := len(fresh) - 1; i >= 0; i-- { // oldest first
				if _, ok := seen[fresh[i].ID]; ok {
					continue
				}
				seen[fresh[i].ID] = fresh[i].Timestamp
				out = append(out, fresh[i])
				if fresh[i].Timestamp.After(cursor) {
					cursor = fresh[i].Timestamp
				}
			}
			for id, ts := range seen {
				if ts.Before(cursor) {
					delete(seen, id)
				}
			}
			if len(out) == 0 {
				continue
			}
			if !send(feedMessage{Type: "signals", Signals: out}) {
				return
			}
			if p, err := s.Recorder.LoadPortfolio(ctx); err == nil && p != nil {
				if !send(feedMessage{Type: "portfolio", Portfolio: p}) {
					return
				}
			}
		}
	}
}
