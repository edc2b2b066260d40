package autosave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/testutil"
)

func TestDebouncer_FiresOnceAfterQuietPeriod(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	fired := 0
	d := autosave.NewDebouncer(time.Second, clock, func() { fired++ })

	d.Notify()
	clock.Advance(400 * time.Millisecond)
	d.Notify()
	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 0, fired)
	assert.True(t, d.Pending())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.False(t, d.Pending())

	clock.Advance(time.Hour)
	assert.Equal(t, 1, fired)
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	clock := testutil.NewFakeClock(t0)
	fired := 0
	d := autosave.NewDebouncer(time.Second, clock, func() { fired++ })

	d.Notify()
	d.Cancel()
	clock.Advance(time.Second)
	assert.Equal(t, 0, fired)

	d.Notify()
	clock.Advance(time.Second)
	assert.Equal(t, 1, fired)

	d.Notify()
	d.Stop()
	d.Notify()
	clock.Advance(time.Hour)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, clock.Pending())
}

func TestDebouncer_Defaults(t *testing.T) {
	d := autosave.NewDebouncer(0, nil, func() {})
	assert.Equal(t, autosave.DefaultQuietPeriod, d.QuietPeriod())
	assert.Panics(t, func() { autosave.NewDebouncer(time.Second, nil, nil) })
}
