package mixer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 32768 /  50% / -18.06 dB
	Properties:
		application.name = "sia"
Sink Input #bogus
	Volume: 10%
`

type fakePactl struct {
	listing string
	sets    []string
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	if args[0] == "list" {
		return []byte(f.listing), nil
	}
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	return nil, nil
}

func newDucker(f *fakePactl) *Ducker {
	d := New([]string{"sia"}, 10)
	d.run = f.run
	d.sleep = func(time.Duration) {}
	return d
}

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(listing)
	assert.Equal(t, []stream{
		{ID: 41, Volume: 100, AppName: "Firefox"},
		{ID: 42, Volume: 50, AppName: "sia"},
	}, got)
}

func TestDuckSkipsSelfAndRestores(t *testing.T) {
	f := &fakePactl{listing: listing}
	d := newDucker(f)
	ctx := context.Background()

	require.NoError(t, d.DuckOthers(ctx, 0.3, 0))
	assert.Equal(t, []string{"41 30%"}, f.sets)

	require.NoError(t, d.DuckOthers(ctx, 0.3, 0))
	assert.Len(t, f.sets, 1, "ducking twice is a no-op")

	f.listing = strings.Replace(listing, "100%", "30%", 1)
	f.sets = nil
	require.NoError(t, d.UnduckOthers(ctx, 0))
	assert.Equal(t, []string{"41 100%"}, f.sets)
}

func TestDuckFloorAndFade(t *testing.T) {
	f := &fakePactl{listing: listing}
	d := newDucker(f)

	require.NoError(t, d.DuckOthers(context.Background(), 0, 40*time.Millisecond))
	require.Len(t, f.sets, 5)
	assert.Equal(t, "41 100%", f.sets[0])
	assert.Equal(t, "41 10%", f.sets[4])
}

func TestUnduckWithoutDuckIsNoop(t *testing.T) {
	f := &fakePactl{listing: listing}
	require.NoError(t, newDucker(f).UnduckOthers(context.Background(), 0))
	assert.Empty(t, f.sets)
}
