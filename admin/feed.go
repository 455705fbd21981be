// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stakemesh/stakemesh/node"
	"github.com/stakemesh/stakemesh/runtime"
)

const (
	feedBacklog  = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Feed fans committed blocks out to websocket subscribers. A subscriber
// that falls feedBacklog blocks behind misses blocks.
type Feed struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan []byte]struct{})}
}

// Publish sends the summary of res to every subscriber without blocking.
func (f *Feed) Publish(res *runtime.Result) {
	msg, err := json.Marshal(node.Summarize(res))
	if err != nil {
		logger.Warn("failed to encode block", "number", res.Head.Number, "err", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- msg:
		default:
			metricFeedDropped().Add(1)
		}
	}
}

func (f *Feed) subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, feedBacklog)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}

func (f *Feed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (f *Feed) handle(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// the upgrader has replied
		logger.Debug("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	msgs, unsubscribe := f.subscribe()
	defer unsubscribe()

	// the read loop only observes the close frame
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	for {
		select {
		case <-closed:
			return
		case <-req.Context().Done():
			return
		case msg := <-msgs:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("write block", "err", err)
				return
			}
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
