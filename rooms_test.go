package main

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, maxRooms int, idle time.Duration) *RoomManager {
	t.Helper()
	prev := RoomIdleTimeout
	RoomIdleTimeout = idle
	m := NewRoomManager("", maxRooms, RoomOptions{Tiles: NewTileMap(10, 10, TileGrass)})
	RoomIdleTimeout = prev
	t.Cleanup(m.Shutdown)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRoomManagerDefaultRoom(t *testing.T) {
	m := newTestManager(t, 0, time.Minute)
	if m.DefaultRoom() != DefaultRoomName {
		t.Errorf("default room = %q, want %q", m.DefaultRoom(), DefaultRoomName)
	}
	if m.Get(DefaultRoomName) == nil {
		t.Fatal("default room should exist from the start")
	}
	list := m.List()
	if len(list) != 1 || list[0].Name != DefaultRoomName || list[0].Players != 0 {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestRoomManagerJoinOrCreate(t *testing.T) {
	m := newTestManager(t, 0, time.Minute)

	r1, err := m.JoinOrCreate("arena")
	if err != nil {
		t.Fatalf("JoinOrCreate: %v", err)
	}
	r2, _ := m.JoinOrCreate("arena")
	if r1 != r2 {
		t.Error("same name should return the same room")
	}
	if r, _ := m.JoinOrCreate(""); r.Name() != DefaultRoomName {
		t.Errorf("empty name should select the default room, got %q", r.Name())
	}
	if m.Count() != 2 {
		t.Errorf("expected 2 rooms, got %d", m.Count())
	}
	if m.Get("nope") != nil {
		t.Error("Get returned a room that was never created")
	}
}

func TestRoomManagerCleanRoomName(t *testing.T) {
	m := newTestManager(t, 0, time.Minute)
	tests := []struct{ in, want string }{
		{"", DefaultRoomName},
		{"   ", DefaultRoomName},
		{"my room", "my_room"},
		{"\x00castle", "castle"},
		{"abcdefghijklmnopqrstuvwxyz0123456789", "abcdefghijklmnopqrstuvwxyz012345"},
	}
	for _, tt := range tests {
		if got := m.CleanRoomName(tt.in); got != tt.want {
			t.Errorf("CleanRoomName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoomManagerTooManyRooms(t *testing.T) {
	m := newTestManager(t, 2, time.Minute)
	if _, err := m.JoinOrCreate("one"); err != nil {
		t.Fatalf("JoinOrCreate: %v", err)
	}
	if _, err := m.JoinOrCreate("two"); !errors.Is(err, ErrTooManyRooms) {
		t.Errorf("expected ErrTooManyRooms, got %v", err)
	}
	if _, _, err := m.Join("three", "s", JoinOptions{}); !errors.Is(err, ErrTooManyRooms) {
		t.Errorf("expected ErrTooManyRooms from Join, got %v", err)
	}
	if _, err := m.JoinOrCreate("one"); err != nil {
		t.Errorf("existing room should still resolve: %v", err)
	}
}

func TestRoomManagerReapsEmptyRoom(t *testing.T) {
	m := newTestManager(t, 0, 20*time.Millisecond)

	r, p, err := m.Join("arena", "s1", JoinOptions{Name: "Ana"})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if r.Name() != "arena" || p.ID != "s1" {
		t.Fatalf("unexpected join %q %+v", r.Name(), p)
	}

	left, ok := m.RemovePlayer("arena", "s1")
	if !ok || left.Name != "Ana" {
		t.Fatalf("RemovePlayer returned %+v, %v", left, ok)
	}
	waitFor(t, "room reap", func() bool { return m.Get("arena") == nil })

	if _, ok := m.RemovePlayer("arena", "s1"); ok {
		t.Error("removing from a reaped room should report false")
	}
}

func TestRoomManagerKeepsDefaultRoom(t *testing.T) {
	m := newTestManager(t, 0, time.Millisecond)
	m.Join("", "s1", JoinOptions{})
	m.RemovePlayer(DefaultRoomName, "s1")
	time.Sleep(30 * time.Millisecond)
	if m.Get(DefaultRoomName) == nil {
		t.Error("default room was reaped")
	}
}

func TestRoomManagerRejoinCancelsReap(t *testing.T) {
	m := newTestManager(t, 0, 50*time.Millisecond)

	m.Join("arena", "s1", JoinOptions{})
	m.RemovePlayer("arena", "s1")
	r, _, err := m.Join("arena", "s2", JoinOptions{})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if m.Get("arena") != r || r.PlayerCount() != 1 {
		t.Error("room with a player was reaped")
	}
}

func TestRoomManagerShutdown(t *testing.T) {
	m := newTestManager(t, 0, time.Minute)
	r, _ := m.JoinOrCreate("arena")
	m.Shutdown()

	select {
	case <-r.stop:
	default:
		t.Error("Shutdown did not stop the room")
	}
}

func TestRoomManagerEvict(t *testing.T) {
	m := newTestManager(t, 0, time.Minute)
	m.Join("", "s1", JoinOptions{Name: "Ana", AccountID: 7})
	m.Join("arena", "s2", JoinOptions{Name: "Beto"})
	m.Join("arena", "s3", JoinOptions{Name: "Caro"})

	left := m.Evict()
	if len(left) != 3 {
		t.Fatalf("expected 3 evicted players, got %d", len(left))
	}
	accounts := 0
	for _, p := range left {
		if p.AccountID == 7 {
			accounts++
		}
	}
	if accounts != 1 {
		t.Errorf("evicted players lost their account id: %+v", left)
	}
	for _, info := range m.List() {
		if info.Players != 0 {
			t.Errorf("room %s still has %d players", info.Name, info.Players)
		}
	}
	if r := m.Get("arena"); r == nil || r.Info().Players != 0 {
		t.Error("evict should empty rooms without removing them")
	}
}

func TestRoomManagerCleansDefaultRoom(t *testing.T) {
	m := NewRoomManager("Main Room", 0, RoomOptions{Tiles: NewTileMap(10, 10, TileGrass)})
	t.Cleanup(m.Shutdown)

	if m.DefaultRoom() != "Main_Room" {
		t.Fatalf("default room = %q, want Main_Room", m.DefaultRoom())
	}
	r, _, err := m.Join("Main Room", "s1", JoinOptions{})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if r != m.Get(m.DefaultRoom()) || m.Count() != 1 {
		t.Errorf("joining by the configured name opened a second room: %+v", m.List())
	}
	if got := m.CleanRoomName(""); got != "Main_Room" {
		t.Errorf("empty name resolves to %q", got)
	}
}
