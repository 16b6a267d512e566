package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func action(tool string, start time.Time) Action {
	return Action{Tool: tool, Outcome: OutcomeOK, Start: start}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	r := New(5)
	base := time.Now()
	r.Record(action("loki_query_logs", base))
	r.Record(action("loki_tail", base.Add(time.Second)))
	r.Record(action("loki_health", base.Add(2*time.Second)))

	recent := r.Recent(0)
	assert.Equal(t, "loki_health", recent[0].Tool)
	assert.Equal(t, "loki_tail", recent[1].Tool)
	assert.Equal(t, "loki_query_logs", recent[2].Tool)
}

func TestOverwritesOldestWhenFull(t *testing.T) {
	r := New(2)
	r.Record(action("a", time.Now()))
	r.Record(action("b", time.Now()))
	r.Record(action("c", time.Now()))

	assert.Equal(t, 2, r.Len())
	recent := r.Recent(0)
	assert.Equal(t, []string{"c", "b"}, []string{recent[0].Tool, recent[1].Tool})
}

func TestLimitClamps(t *testing.T) {
	r := New(10)
	for i := 0; i < 5; i++ {
		r.Record(action("tool", time.Now()))
	}
	assert.Len(t, r.Recent(2), 2)
	assert.Len(t, r.Recent(100), 5)
	assert.Len(t, r.Recent(0), 5)
}

func TestEmptyRing(t *testing.T) {
	r := New(3)
	assert.Empty(t, r.Recent(0))
	assert.Equal(t, 0, r.Len())
}
