package net

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/sumo"
	"github.com/Halldon-Inc/moltblox-sub002/internal/journal"
	"github.com/Halldon-Inc/moltblox-sub002/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "sessions.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	manager := session.NewManager(store, zerolog.Nop())
	srv := httptest.NewServer(NewHandler(manager, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func createSumo(t *testing.T, srv *httptest.Server) session.Summary {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"game":    "sumo",
		"players": []string{"east", "west"},
		"seed":    "net-test",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var summary session.Summary
	decodeBody(t, resp, &summary)
	require.NotEmpty(t, summary.ID)
	return summary
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestDiagnosticsExposesCounters(t *testing.T) {
	srv := newTestServer(t)
	createSumo(t, srv)

	resp, err := http.Get(srv.URL + "/diagnostics")
	require.NoError(t, err)
	var body struct {
		Status   string           `json:"status"`
		Counters map[string]int64 `json:"counters"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, int64(1), body.Counters["sessions_created"])
}

func TestListGamesIncludesBounds(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/games")
	require.NoError(t, err)
	var games []gameInfo
	decodeBody(t, resp, &games)

	var sumo *gameInfo
	for i := range games {
		if games[i].Slug == "sumo" {
			sumo = &games[i]
		}
	}
	require.NotNil(t, sumo, "sumo should be registered")
	require.Equal(t, 2, sumo.MinPlayers)
	require.Equal(t, 2, sumo.MaxPlayers)
}

func TestCreateDescribeAndState(t *testing.T) {
	srv := newTestServer(t)
	summary := createSumo(t, srv)
	require.Equal(t, []string{"east", "west"}, summary.Players)
	require.Equal(t, session.StatusActive, summary.Status)

	resp, err := http.Get(srv.URL + "/api/sessions/" + summary.ID)
	require.NoError(t, err)
	var described session.Summary
	decodeBody(t, resp, &described)
	require.Equal(t, summary.ID, described.ID)
	require.Equal(t, "sumo", described.Game)

	resp, err = http.Get(srv.URL + "/api/sessions/" + summary.ID + "/state?player=east")
	require.NoError(t, err)
	var snap engine.Snapshot
	decodeBody(t, resp, &snap)
	require.NotEmpty(t, snap.Data)

	resp, err = http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	var listed []session.Summary
	decodeBody(t, resp, &listed)
	require.Len(t, listed, 1)
}

func TestCreateRejectsUnknownGame(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions", map[string]any{
		"game":    "bogus",
		"players": []string{"a", "b"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDispatchAction(t *testing.T) {
	srv := newTestServer(t)
	summary := createSumo(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+summary.ID+"/actions", map[string]any{
		"player": "east",
		"type":   "push",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res engine.Result
	decodeBody(t, resp, &res)
	require.True(t, res.Success, res.Error)
	require.NotNil(t, res.State)

	// Out of turn is still HTTP 200; the rejection lives in the result.
	resp = postJSON(t, srv.URL+"/api/sessions/"+summary.ID+"/actions", map[string]any{
		"player": "east",
		"type":   "push",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &res)
	require.False(t, res.Success)
	require.Equal(t, engine.CodeNotYourTurn, res.Code)
}

func TestSessionEventsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	summary := createSumo(t, srv)

	resp := postJSON(t, srv.URL+"/api/sessions/"+summary.ID+"/actions", map[string]any{
		"player": "east",
		"type":   "push",
	})
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/api/sessions/" + summary.ID + "/events")
	require.NoError(t, err)
	var entries []journal.Entry
	decodeBody(t, getResp, &entries)
	require.Len(t, entries, 1)
	require.Equal(t, "push", entries[0].ActionType)

	getResp, err = http.Get(srv.URL + "/api/sessions/" + summary.ID + "/events?after=" +
		strconv.FormatUint(entries[0].Sequence, 10))
	require.NoError(t, err)
	decodeBody(t, getResp, &entries)
	require.Empty(t, entries)
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/leaderboard")
	require.NoError(t, err)
	var standings []session.Standing
	decodeBody(t, resp, &standings)
	require.Empty(t, standings)
}

func TestDispatchActionUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/sessions/nope/actions", map[string]any{
		"player": "east",
		"type":   "push",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readFrame(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wsEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketPushesStateOnActions(t *testing.T) {
	srv := newTestServer(t)
	summary := createSumo(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/"+summary.ID+"?player=east"), nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readFrame(t, conn)
	require.Equal(t, "state", initial.Type)
	require.NotNil(t, initial.State)
	startTurn := initial.State.Turn

	// An action over HTTP shows up as a state push on the socket.
	resp := postJSON(t, srv.URL+"/api/sessions/"+summary.ID+"/actions", map[string]any{
		"player": "east",
		"type":   "push",
	})
	resp.Body.Close()

	pushed := readFrame(t, conn)
	require.Equal(t, "state", pushed.Type)
	require.Greater(t, pushed.State.Turn, startTurn)
}

func TestWebsocketDispatchesActions(t *testing.T) {
	srv := newTestServer(t)
	summary := createSumo(t, srv)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/"+summary.ID+"?player=east"), nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readFrame(t, conn)
	require.Equal(t, "state", initial.Type)

	require.NoError(t, conn.WriteJSON(wsEnvelope{Type: "action", Action: "push"}))

	var result *engine.Result
	for i := 0; i < 4 && result == nil; i++ {
		env := readFrame(t, conn)
		if env.Type == "result" {
			result = env.Result
		}
	}
	require.NotNil(t, result, "expected a result frame")
	require.True(t, result.Success, result.Error)
}

func TestWebsocketUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
