package tactical

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogStreams(t *testing.T) {
	prev := streams.Load()
	t.Cleanup(func() { streams.Store(prev) })

	var ops, diag bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})

	assert.True(t, Enabled(LevelOps))
	assert.True(t, Enabled(LevelDiag))
	assert.False(t, Enabled(LevelTrace))
	assert.False(t, Enabled(Level(7)))

	Opsf("[Pipeline] cleared %d tracks", 3)
	Diagf("[Tracking] track %d created", 9)
	Tracef("[Pipeline] tick")
	Logf(Level(-1), "dropped")

	assert.Contains(t, ops.String(), "[tactical] ")
	assert.Contains(t, ops.String(), "[Pipeline] cleared 3 tracks")
	assert.NotContains(t, ops.String(), "track 9")
	assert.Contains(t, diag.String(), "[Tracking] track 9 created")
	assert.NotContains(t, diag.String(), "tick")

	SetLogWriters(LogWriters{})
	Opsf("silenced")
	assert.NotContains(t, ops.String(), "silenced")
	assert.False(t, Enabled(LevelOps))
}
