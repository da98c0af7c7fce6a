package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Halldon-Inc/moltblox-sub002/internal/engine"
	_ "github.com/Halldon-Inc/moltblox-sub002/internal/games/sumo"
)

func newTestManager(t *testing.T, path string) (*Manager, *Store) {
	t.Helper()
	store, err := OpenStore(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, zerolog.Nop()), store
}

func TestCreatePersistsInitialSnapshot(t *testing.T) {
	m, store := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	s, err := m.Create("sumo", []string{"east", "west"}, "seed-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	row, err := store.Load(s.ID)
	require.NoError(t, err)
	require.Equal(t, "sumo", row.Game)
	require.Equal(t, StatusActive, row.Status)
	require.NotEmpty(t, row.State)

	summary, err := m.Describe(s.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"east", "west"}, summary.Players)
	require.Equal(t, StatusActive, summary.Status)
}

func TestCreateRejectsUnknownGame(t *testing.T) {
	m, _ := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	_, err := m.Create("bogus", []string{"a"}, "", nil)
	require.ErrorIs(t, err, ErrUnknownGame)
}

func TestHandleActionPersistsAndNotifiesWatchers(t *testing.T) {
	m, store := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	s, err := m.Create("sumo", []string{"east", "west"}, "seed-2", nil)
	require.NoError(t, err)
	watch, cancel := s.Watch()
	defer cancel()

	res, err := m.HandleAction(s.ID, "east", engine.Action{Type: "push"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	select {
	case snap := <-watch:
		require.Equal(t, res.State.Turn, snap.Turn)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot on the watch channel")
	}

	row, err := store.Load(s.ID)
	require.NoError(t, err)
	require.Equal(t, res.State.Turn, row.Turn)
}

func TestRejectedActionDoesNotPersist(t *testing.T) {
	m, store := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	s, err := m.Create("sumo", []string{"east", "west"}, "seed-3", nil)
	require.NoError(t, err)
	before, err := store.Load(s.ID)
	require.NoError(t, err)

	res, err := m.HandleAction(s.ID, "west", engine.Action{Type: "push"})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, engine.CodeNotYourTurn, res.Code)

	after, err := store.Load(s.ID)
	require.NoError(t, err)
	require.Equal(t, string(before.State), string(after.State))
}

func TestRehydratesFromStoreAcrossManagers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	first, _ := newTestManager(t, path)

	s, err := first.Create("sumo", []string{"east", "west"}, "seed-4", nil)
	require.NoError(t, err)
	res, err := first.HandleAction(s.ID, "east", engine.Action{Type: "charge"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	// A fresh manager over the same database sees the session and can keep
	// playing it from the exact persisted position.
	second, _ := newTestManager(t, path)
	summary, err := second.Describe(s.ID)
	require.NoError(t, err)
	require.Equal(t, res.State.Turn, summary.Turn)

	res, err = second.HandleAction(s.ID, "west", engine.Action{Type: "push"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
}

func TestAbandonedSessionsRejectActions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	m, store := newTestManager(t, path)

	s, err := m.Create("sumo", []string{"east", "west"}, "seed-5", nil)
	require.NoError(t, err)

	count, err := store.AbandonStale(time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// A manager without the live engine must honor the abandoned row.
	fresh, _ := newTestManager(t, path)
	_, err = fresh.HandleAction(s.ID, "east", engine.Action{Type: "push"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestJournalRecordsAcceptedActionsOnly(t *testing.T) {
	m, _ := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	s, err := m.Create("sumo", []string{"east", "west"}, "seed-6", nil)
	require.NoError(t, err)

	res, err := m.HandleAction(s.ID, "east", engine.Action{Type: "push"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	// Out of turn; must not land in the journal.
	res, err = m.HandleAction(s.ID, "east", engine.Action{Type: "push"})
	require.NoError(t, err)
	require.False(t, res.Success)

	entries, err := m.Events(s.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "east", entries[0].PlayerID)
	require.Equal(t, "push", entries[0].ActionType)

	entries, err = m.Events(s.ID, entries[0].Sequence)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLeaderboardAggregatesFinishedRows(t *testing.T) {
	m, store := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	rows := []*Row{
		{ID: "s1", Game: "sumo", Players: `["east","west"]`, Status: StatusFinished, Winner: "east"},
		{ID: "s2", Game: "sumo", Players: `["east","west"]`, Status: StatusFinished, Winner: "west"},
		{ID: "s3", Game: "sumo", Players: `["east","west"]`, Status: StatusFinished, Winner: "east"},
		{ID: "s4", Game: "brawl", Players: `["east","other"]`, Status: StatusFinished, Winner: "other"},
		{ID: "s5", Game: "sumo", Players: `["east","west"]`, Status: StatusActive},
	}
	for _, row := range rows {
		require.NoError(t, store.Save(row))
	}

	standings, err := m.Leaderboard("sumo")
	require.NoError(t, err)
	require.Len(t, standings, 2)
	require.Equal(t, Standing{PlayerID: "east", Wins: 2, Played: 3}, standings[0])
	require.Equal(t, Standing{PlayerID: "west", Wins: 1, Played: 3}, standings[1])

	all, err := m.Leaderboard("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "east", all[0].PlayerID)
	require.Equal(t, 4, all[0].Played)
}

func TestSnapshotUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, filepath.Join(t.TempDir(), "sessions.db"))

	_, err := m.Snapshot("nope", "")
	require.ErrorIs(t, err, ErrNotFound)
}
