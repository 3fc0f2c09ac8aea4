package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256 // PNG edge in pixels

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes. publicURL is the address encoded in
// join QR codes. An empty adminToken disables the /admin routes.
func SetupRoutes(hub *Hub, publicURL, adminToken string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Warnw("upgrade error", "ip", ip, "err", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip, r.URL.Query().Get("room"))
		hub.register <- client
		Log.Debugw("client connected", "sid", client.sessionID, "ip", ip)

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.rooms.List()); err != nil {
			Log.Warnw("write room list", "err", err)
		}
	})

	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		room := hub.rooms.CleanRoomName(r.URL.Query().Get("room"))
		png, err := qrcode.Encode(JoinURL(publicURL, room), qrcode.Medium, qrSize)
		if err != nil {
			Log.Errorw("qr encode", "room", room, "err", err)
			http.Error(w, "qr failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	// POST /admin/tile?room=name with a map_chunk entry {i, s} as the body
	mux.HandleFunc("/admin/tile", func(w http.ResponseWriter, r *http.Request) {
		if adminToken == "" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		name := hub.rooms.CleanRoomName(r.URL.Query().Get("room"))
		room := hub.rooms.Get(name)
		if room == nil {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}

		var body TileChunk
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		switch err := room.SetTile(body.I, body.S); {
		case errors.Is(err, ErrTileOccupied):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		Log.Infow("tile edited", "room", name, "i", body.I, "stack", body.S, "ip", extractIP(r))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	return mux
}

// JoinURL returns publicURL with the room preselected
func JoinURL(publicURL, room string) string {
	u, err := url.Parse(publicURL)
	if err != nil {
		return publicURL
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()
	return u.String()
}
