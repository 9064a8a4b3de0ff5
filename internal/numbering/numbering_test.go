package numbering

import (
	"errors"
	"testing"

	"github.com/fentz26/questline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCounter struct {
	values map[string]int64
	err    error
}

func (m *memCounter) NextCounter(name string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	v := m.values[name]
	m.values[name] = v + 1
	return v, nil
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		t    models.QuestType
		n    int64
		want string
	}{
		{name: "first click", t: models.QuestTypeClick, n: 0, want: "000000000"},
		{name: "timer", t: models.QuestTypeTimer, n: 42, want: "100000042"},
		{name: "monthly", t: models.QuestTypeMonthly, n: 12345678, want: "712345678"},
		{name: "overflow widens", t: models.QuestTypeSideline, n: 123456789, want: "2123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.t, tt.n))
		})
	}
}

func TestNextSharesCounterAcrossTypes(t *testing.T) {
	store := &memCounter{values: map[string]int64{}}
	seq := New(store)

	a, err := seq.Next(models.QuestTypeClick)
	require.NoError(t, err)
	b, err := seq.Next(models.QuestTypeTimer)
	require.NoError(t, err)
	c, err := seq.Next(models.QuestTypeClick)
	require.NoError(t, err)

	assert.Equal(t, "000000000", a)
	assert.Equal(t, "100000001", b)
	assert.Equal(t, "000000002", c)
	assert.Equal(t, int64(3), store.values[models.CounterPartition])
}

func TestNextPropagatesStoreError(t *testing.T) {
	boom := errors.New("disk full")
	seq := New(&memCounter{err: boom})

	_, err := seq.Next(models.QuestTypeClick)
	assert.ErrorIs(t, err, boom)
}
