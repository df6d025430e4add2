// internal/desktop/cdp/backend_test.go
package cdp

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// recorder captures every action batch instead of talking to a browser.
type recorder struct {
	batches [][]chromedp.Action
	err     error
}

func (r *recorder) run(_ context.Context, actions ...chromedp.Action) error {
	r.batches = append(r.batches, actions)
	return r.err
}

func (r *recorder) mouseEvents(t *testing.T) []*input.DispatchMouseEventParams {
	t.Helper()
	var out []*input.DispatchMouseEventParams
	for _, batch := range r.batches {
		for _, a := range batch {
			if p, ok := a.(*input.DispatchMouseEventParams); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

func (r *recorder) keyEvents(t *testing.T) []*input.DispatchKeyEventParams {
	t.Helper()
	var out []*input.DispatchKeyEventParams
	for _, batch := range r.batches {
		for _, a := range batch {
			if p, ok := a.(*input.DispatchKeyEventParams); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

func setup(t *testing.T) (*Backend, *recorder) {
	rec := &recorder{}
	return newBackend(rec.run, zaptest.NewLogger(t), 2000), rec
}

func TestMoveAndClick(t *testing.T) {
	b, rec := setup(t)
	ctx := context.Background()

	require.NoError(t, b.MoveMouse(ctx, 120, 80))
	require.NoError(t, b.Click(ctx, schemas.ButtonLeft, 2))

	events := rec.mouseEvents(t)
	require.Len(t, events, 5)
	assert.Equal(t, input.MouseMoved, events[0].Type)
	assert.Equal(t, 120.0, events[0].X)

	assert.Equal(t, input.MousePressed, events[1].Type)
	assert.Equal(t, int64(1), events[1].ClickCount)
	assert.Equal(t, input.MouseReleased, events[2].Type)
	assert.Equal(t, int64(2), events[3].ClickCount, "second press of a double click")
	for _, e := range events[1:] {
		assert.Equal(t, 120.0, e.X)
		assert.Equal(t, 80.0, e.Y)
		assert.Equal(t, input.Left, e.Button)
	}

	pos, err := b.PointerPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemas.Position{X: 120, Y: 80}, pos)
}

func TestDragCarriesHeldButton(t *testing.T) {
	b, rec := setup(t)
	ctx := context.Background()

	require.NoError(t, b.MoveMouse(ctx, 10, 10))
	require.NoError(t, b.PressButton(ctx, schemas.ButtonLeft))
	require.NoError(t, b.MoveMouse(ctx, 50, 60))
	require.NoError(t, b.ReleaseButton(ctx, schemas.ButtonLeft))
	require.NoError(t, b.MoveMouse(ctx, 70, 70))

	events := rec.mouseEvents(t)
	require.Len(t, events, 5)
	assert.Equal(t, int64(1), events[1].Buttons)
	assert.Equal(t, int64(1), events[2].Buttons, "move while pressed reports the held button")
	assert.Equal(t, input.MouseReleased, events[3].Type)
	assert.Equal(t, int64(0), events[4].Buttons)
}

func TestReleaseClearsStateOnFailure(t *testing.T) {
	b, rec := setup(t)
	ctx := context.Background()
	require.NoError(t, b.PressButton(ctx, schemas.ButtonLeft))

	rec.err = errors.New("socket closed")
	assert.Error(t, b.ReleaseButton(ctx, schemas.ButtonLeft))

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Zero(t, b.buttons)
}

func TestScroll(t *testing.T) {
	b, rec := setup(t)
	ctx := context.Background()

	require.NoError(t, b.Scroll(ctx, schemas.ScrollDown, 3))
	require.NoError(t, b.Scroll(ctx, schemas.ScrollLeft, 1))
	assert.Error(t, b.Scroll(ctx, "diagonal", 1))

	events := rec.mouseEvents(t)
	require.Len(t, events, 2)
	assert.Equal(t, input.MouseWheel, events[0].Type)
	assert.Equal(t, 300.0, events[0].DeltaY)
	assert.Equal(t, -100.0, events[1].DeltaX)
}

func TestKeyboard(t *testing.T) {
	t.Run("modifiers apply to the tapped key", func(t *testing.T) {
		b, rec := setup(t)
		ctx := context.Background()

		require.NoError(t, b.PressKey(ctx, "Control"))
		require.NoError(t, b.TapKey(ctx, "s"))
		require.NoError(t, b.ReleaseKey(ctx, "Control"))

		events := rec.keyEvents(t)
		require.Len(t, events, 4)
		assert.Equal(t, input.KeyDown, events[0].Type)
		assert.Equal(t, "Control", events[0].Key)
		assert.Equal(t, input.ModifierCtrl, events[1].Modifiers)
		assert.Equal(t, "s", events[1].Key)
		assert.Empty(t, events[1].Text, "ctrl+s must not insert text")
		assert.Equal(t, input.KeyUp, events[3].Type)
		assert.Equal(t, input.Modifier(0), events[3].Modifiers)
	})

	t.Run("plain printable key inserts text", func(t *testing.T) {
		b, rec := setup(t)
		require.NoError(t, b.TapKey(context.Background(), "a"))
		events := rec.keyEvents(t)
		require.Len(t, events, 2)
		assert.Equal(t, "a", events[0].Text)
	})

	t.Run("named keys resolve", func(t *testing.T) {
		for _, name := range []string{"Enter", "Delete", "F4", "ArrowUp", "Space", "Escape"} {
			k, err := lookupKey(name)
			require.NoError(t, err, name)
			assert.NotEmpty(t, k.Key, name)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		b, rec := setup(t)
		err := b.TapKey(context.Background(), "Hyperdrive")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown key")
		assert.Empty(t, rec.batches)
	})

	t.Run("type text uses key events", func(t *testing.T) {
		b, rec := setup(t)
		require.NoError(t, b.TypeText(context.Background(), "hi"))
		require.NoError(t, b.TypeText(context.Background(), ""))
		assert.Len(t, rec.batches, 1)
	})
}

func TestRunErrorsAreWrapped(t *testing.T) {
	b, rec := setup(t)
	rec.err = errors.New("target closed")

	err := b.MoveMouse(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target closed")

	pos, _ := b.PointerPosition(context.Background())
	assert.Equal(t, schemas.Position{}, pos, "failed moves do not update the pointer")
}

func TestCaptureScale(t *testing.T) {
	assert.Equal(t, 1.0, captureScale(1920, 2000))
	assert.Equal(t, 1.0, captureScale(1920, 0))
	assert.Equal(t, 0.5, captureScale(4000, 2000))
	assert.Equal(t, 0.781, captureScale(2560, 2000))
}

func TestExecOptions(t *testing.T) {
	headless := execOptions(config.DesktopConfig{Headless: true})
	headed := execOptions(config.DesktopConfig{Headless: false})
	assert.Len(t, headed, len(headless)+1)
}
