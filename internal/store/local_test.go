package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioregister/internal/logger"
	"studioregister/internal/model"
)

func openTestStore(t *testing.T) *Local {
	t.Helper()
	lg := logger.New("test", "", logger.Error)
	s, err := OpenLocal(filepath.Join(t.TempDir(), "register.db"), lg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLocalRoundTrip(t *testing.T) {
	s := openTestStore(t)

	cls := model.DanceClass{ID: "a", Name: "Ballet A", Color: "#aabbcc"}
	cls.State = model.LifecycleActive
	cls.UpdatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, SaveCollection(s, KeyClasses, []model.DanceClass{cls}))
	got := LoadCollection[model.DanceClass](s, KeyClasses)
	require.Len(t, got, 1)
	assert.Equal(t, cls, got[0])
}

func TestLocalMissingKeyIsEmpty(t *testing.T) {
	s := openTestStore(t)
	assert.Empty(t, LoadCollection[model.Student](s, KeyStudents))
}

func TestLocalOverwriteReplacesCollection(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, SaveCollection(s, KeyClasses, []model.DanceClass{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, SaveCollection(s, KeyClasses, []model.DanceClass{{ID: "c"}}))

	got := LoadCollection[model.DanceClass](s, KeyClasses)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestLocalCorruptPayloadDegradesToEmpty(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, SaveCollection(s, KeyClasses, []model.DanceClass{{ID: "a"}}))

	_, err := s.db.Exec(`UPDATE collections SET payload = '{not json' WHERE key = ?`, KeyClasses)
	require.NoError(t, err)

	assert.Empty(t, LoadCollection[model.DanceClass](s, KeyClasses))
}

func TestLocalHealthy(t *testing.T) {
	s := openTestStore(t)
	assert.True(t, s.Healthy())

	var nilStore *Local
	assert.False(t, nilStore.Healthy())
}
