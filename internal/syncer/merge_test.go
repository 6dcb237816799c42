package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioregister/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func class(id, name string, updatedAt time.Time, synced bool) model.DanceClass {
	c := model.DanceClass{ID: id, Name: name}
	c.State = model.LifecycleActive
	c.UpdatedAt = updatedAt
	c.Synced = synced
	return c
}

func TestMergeLocalOnlyNeedsPush(t *testing.T) {
	local := []model.DanceClass{class("a", "Ballet A", t0, false)}

	merged := Merge(local, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "Ballet A", merged[0].Name)
	assert.True(t, merged[0].PendingPush())
}

func TestMergeRemoteWinsTiesFieldForField(t *testing.T) {
	remote := []model.DanceClass{class("a", "Ballet A", t0, true)}
	remote[0].Color = "#ff0000"

	// Same timestamp: remote version wins exactly.
	local := []model.DanceClass{class("a", "Ballet A (local)", t0, false)}
	merged := Merge(local, remote)
	require.Len(t, merged, 1)
	assert.Equal(t, remote[0], merged[0])

	// Older local: remote still wins.
	stale := []model.DanceClass{class("a", "Old name", t0.Add(-time.Hour), false)}
	merged = Merge(stale, remote)
	assert.Equal(t, remote[0], merged[0])
}

func TestMergeStrictlyNewerLocalWins(t *testing.T) {
	remote := []model.DanceClass{class("a", "Ballet A", t0, true)}
	local := []model.DanceClass{class("a", "Ballet Beginners", t0.Add(time.Minute), true)}

	merged := Merge(local, remote)
	require.Len(t, merged, 1)
	assert.Equal(t, "Ballet Beginners", merged[0].Name)
	// The surviving local edit is flagged for push regardless of its old flag.
	assert.True(t, merged[0].PendingPush())
}

func TestMergePropagatesDeletions(t *testing.T) {
	remote := []model.DanceClass{class("a", "Ballet A", t0, true)}
	gone := class("a", "Ballet A", t0.Add(time.Minute), false)
	gone.State = model.LifecycleDeleted

	merged := Merge([]model.DanceClass{gone}, remote)
	require.Len(t, merged, 1)
	assert.True(t, merged[0].Deleted())
}

func TestMergeIdempotent(t *testing.T) {
	local := []model.DanceClass{
		class("a", "Ballet Beginners", t0.Add(time.Minute), false),
		class("c", "Contemporary", t0, false),
	}
	remote := []model.DanceClass{
		class("a", "Ballet A", t0, true),
		class("b", "Breakdance", t0, true),
	}

	once := Merge(local, remote)
	twice := Merge(once, once)

	// Re-merging a merged collection with itself changes nothing except that
	// both sides now agree, so nothing is left pending push.
	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].WithSynced(true), twice[i])
	}

	// And it stays stable from there on.
	assert.Equal(t, twice, Merge(twice, twice))
}

func TestMergeDeterministicOrder(t *testing.T) {
	remote := []model.DanceClass{
		class("b", "B", t0, true),
		class("a", "A", t0, true),
	}
	merged := Merge(nil, remote)
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].ID)
	assert.Equal(t, "b", merged[1].ID)
}

// Two devices edit different records of the same class offline; after both
// sync, both changes survive on the mirror and on both devices.
func TestMergeTwoDevicesIndependentRecords(t *testing.T) {
	studentB := model.Student{ID: "x", Name: "X", ClassID: "a"}
	studentB.UpdatedAt = t0
	studentB.Synced = true

	// Shared starting state.
	remoteClasses := []model.DanceClass{class("a", "Ballet A", t0, true)}
	remoteStudents := []model.Student{studentB}

	// Device A renames the class at T+1.
	devAClasses := []model.DanceClass{class("a", "Ballet Beginners", t0.Add(time.Second), false)}
	// Device B archives the student at T+2.
	devBStudent := studentB
	devBStudent.Archived = true
	devBStudent.Touch(t0.Add(2 * time.Second))
	devBStudents := []model.Student{devBStudent}

	// Device A syncs: its class edit reaches the mirror.
	mergedA := Merge(devAClasses, remoteClasses)
	remoteClasses = pushAll(mergedA)

	// Device B syncs both collections.
	mergedBClasses := Merge([]model.DanceClass{class("a", "Ballet A", t0, true)}, remoteClasses)
	mergedBStudents := Merge(devBStudents, remoteStudents)
	remoteStudents = pushAll(mergedBStudents)

	// Device A pulls again.
	finalAStudents := Merge([]model.Student{studentB}, remoteStudents)

	assert.Equal(t, "Ballet Beginners", mergedBClasses[0].Name, "device B sees the rename")
	assert.True(t, finalAStudents[0].Archived, "device A sees the archive")
	assert.Equal(t, "Ballet Beginners", remoteClasses[0].Name)
	assert.True(t, remoteStudents[0].Archived)
}

// pushAll simulates a successful push: the mirror takes every pending record.
func pushAll[T model.Syncable[T]](merged []T) []T {
	out := make([]T, len(merged))
	for i, r := range merged {
		out[i] = r.WithSynced(true)
	}
	return out
}
