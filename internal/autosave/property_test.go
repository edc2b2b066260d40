package autosave_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/matheusnogalha/draft-os/internal/autosave"
	"github.com/matheusnogalha/draft-os/internal/testutil"
)

// 间隔都小于静默期的一串编辑只产生一次保存，且保存的是最后一次编辑。
func TestEngine_CoalescingProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("burst saves once with last content", prop.ForAll(
		func(gapsMs []int) bool {
			clock := testutil.NewFakeClock(t0)
			saver := newStubSaver()
			engine := autosave.NewEngine("chapter-1", json.RawMessage(`{}`), saver,
				autosave.WithClock(clock), autosave.WithQuietPeriod(quiet))
			defer engine.Close()

			last := ""
			for i, gap := range gapsMs {
				clock.Advance(time.Duration(gap) * time.Millisecond)
				last = fmt.Sprintf(`{"v":%d}`, i)
				if _, err := engine.Edit(json.RawMessage(last)); err != nil {
					return false
				}
			}
			if len(saver.Calls()) != 0 {
				return false
			}

			clock.Advance(quiet)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := engine.Wait(ctx); err != nil {
				return false
			}
			calls := saver.Calls()
			return len(calls) == 1 && string(calls[0]) == last &&
				engine.Status() == autosave.StatusSaved
		},
		gen.SliceOf(gen.IntRange(0, 1999)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}

// 任意的成功/失败序列之后，只要最后一次保存成功，状态就是 saved 且不再有写入。
func TestEngine_EventuallySavedProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	properties := gopter.NewProperties(params)

	properties.Property("transient failures never lose the latest edit", prop.ForAll(
		func(failures int) bool {
			clock := testutil.NewFakeClock(t0)
			saver := newStubSaver()
			for i := 0; i < failures; i++ {
				saver.failNext(fmt.Errorf("%w: attempt %d", autosave.ErrTransient, i))
			}
			engine := autosave.NewEngine("chapter-1", json.RawMessage(`{}`), saver,
				autosave.WithClock(clock), autosave.WithQuietPeriod(quiet))
			defer engine.Close()

			if _, err := engine.Edit(json.RawMessage(`{"v":"final"}`)); err != nil {
				return false
			}
			for i := 0; i <= failures; i++ {
				clock.Advance(quiet)
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				err := engine.Wait(ctx)
				cancel()
				if err != nil {
					return false
				}
			}
			clock.Advance(10 * quiet)

			calls := saver.Calls()
			return len(calls) == failures+1 &&
				string(calls[len(calls)-1]) == `{"v":"final"}` &&
				engine.Status() == autosave.StatusSaved && !engine.Dirty()
		},
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
