package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripmate-ai/tripmate/core"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_LazyGet(t *testing.T) {
	store := openTestSQLite(t)

	sess, err := store.Get("fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.ID)
	assert.Empty(t, sess.Events)
}

func TestSQLiteStore_EventRoundTrip(t *testing.T) {
	store := openTestSQLite(t)

	turnID := core.NewID()
	userEv := core.NewUserMessageEvent(turnID, "帮我查一下大理的天气")
	callEv := core.NewFunctionCallEvent(turnID, "TripMate", "hourly_weather", `{"location":"Dali"}`)
	respEv := core.NewFunctionResponseEvent(turnID, "TripMate", "fc-1", "hourly_weather", "⏰14:00 | 🌡️22°C | ☔rain:10%", nil)
	finalEv := core.NewAssistantMessageEvent(turnID, "TripMate", "下午大理 22°C，降水概率 10%。")

	for _, ev := range []core.Event{userEv, callEv, respEv, finalEv} {
		require.NoError(t, store.AppendEvent("s1", ev))
	}

	sess, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 4)

	// Insertion order survives the round trip
	assert.Equal(t, userEv.ID, sess.Events[0].ID)
	assert.Equal(t, "user", sess.Events[0].Content.Role)

	calls := sess.Events[1].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "hourly_weather", calls[0].Name)
	assert.Equal(t, `{"location":"Dali"}`, calls[0].Arguments)

	responses := sess.Events[2].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "fc-1", responses[0].ID)
	assert.Contains(t, responses[0].Response, "14:00")

	assert.Equal(t, "下午大理 22°C，降水概率 10%。", sess.Events[3].Content.Text())
}

func TestSQLiteStore_ApplyDelta(t *testing.T) {
	store := openTestSQLite(t)

	require.NoError(t, store.ApplyDelta("s1", map[string]any{"traveler.destination": "大理"}))
	require.NoError(t, store.ApplyDelta("s1", map[string]any{"traveler.party_size": "couple"}))

	sess, err := store.Get("s1")
	require.NoError(t, err)

	dest, ok := sess.GetState("traveler.destination")
	assert.True(t, ok)
	assert.Equal(t, "大理", dest)
	party, ok := sess.GetState("traveler.party_size")
	assert.True(t, ok)
	assert.Equal(t, "couple", party)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	turnID := core.NewID()
	require.NoError(t, store.AppendEvent("s1", core.NewUserMessageEvent(turnID, "hello")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	sess, err := reopened.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 1)
	assert.Equal(t, "hello", sess.Events[0].Content.Text())
}

func TestSQLiteStore_HistoryFiltering(t *testing.T) {
	store := openTestSQLite(t)

	turnID := core.NewID()
	require.NoError(t, store.AppendEvent("s1", core.NewUserMessageEvent(turnID, "hi")))
	errEv := core.NewErrorEvent(turnID, assert.AnError)
	require.NoError(t, store.AppendEvent("s1", errEv))

	sess, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	// System error events are persisted but excluded from model history
	assert.Len(t, sess.GetConversationHistory(), 1)
}
