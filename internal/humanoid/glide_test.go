// internal/humanoid/glide_test.go
package humanoid

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

type recordingMover struct {
	mu     sync.Mutex
	points []Vector2D
	failAt int
}

func (r *recordingMover) MoveMouse(_ context.Context, x, y float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.points)+1 == r.failAt {
		return errors.New("dispatch failed")
	}
	r.points = append(r.points, Vector2D{X: x, Y: y})
	return nil
}

func testConfig() config.HumanoidConfig {
	return config.HumanoidConfig{
		FittsA:       60 * time.Millisecond,
		FittsB:       120 * time.Millisecond,
		TargetWidth:  20,
		CurveSpread:  0.2,
		StepInterval: 8 * time.Millisecond,
		MaxSteps:     60,
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestGlider(t *testing.T) *Glider {
	return NewGlider(testConfig(), 1000, zaptest.NewLogger(t), WithSeed(42), WithSleeper(noSleep))
}

func TestVector2D(t *testing.T) {
	v1 := Vector2D{X: 3, Y: 4}
	v2 := Vector2D{X: 1, Y: 2}

	assert.Equal(t, Vector2D{X: 4, Y: 6}, v1.Add(v2))
	assert.Equal(t, Vector2D{X: 2, Y: 2}, v1.Sub(v2))
	assert.Equal(t, Vector2D{X: 6, Y: 8}, v1.Mul(2))
	assert.Equal(t, 5.0, v1.Mag())
	assert.InDelta(t, math.Sqrt(8.0), v1.Dist(v2), 1e-9)
	assert.Equal(t, Vector2D{X: -4, Y: 3}, v1.Perp())
	assert.InDelta(t, 1.0, v1.Normalize().Mag(), 1e-9)
	assert.Equal(t, Vector2D{}, Vector2D{}.Normalize())
	assert.Equal(t, Vector2D{X: 2, Y: -1}, Vector2D{X: 1.6, Y: -1.4}.Round())
}

func TestComputeEaseInOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, computeEaseInOutCubic(0))
	assert.Equal(t, 0.5, computeEaseInOutCubic(0.5))
	assert.Equal(t, 1.0, computeEaseInOutCubic(1))
	assert.Less(t, computeEaseInOutCubic(0.25), 0.25, "slow start")
	assert.Greater(t, computeEaseInOutCubic(0.75), 0.75, "slow finish")
}

func TestPlan(t *testing.T) {
	g := newTestGlider(t)

	t.Run("ends exactly on target", func(t *testing.T) {
		end := Vector2D{X: 800, Y: 450}
		path := g.Plan(Vector2D{X: 10, Y: 10}, end)
		require.GreaterOrEqual(t, len(path.Points), 2)
		assert.LessOrEqual(t, len(path.Points), 60)
		assert.Equal(t, end, path.Points[len(path.Points)-1])
	})

	t.Run("zero distance is a single step", func(t *testing.T) {
		p := Vector2D{X: 5, Y: 5}
		path := g.Plan(p, p)
		assert.Equal(t, []Vector2D{p}, path.Points)
		assert.Zero(t, path.Duration)
	})

	t.Run("duration honours pointer speed", func(t *testing.T) {
		slow := NewGlider(testConfig(), 100, zaptest.NewLogger(t), WithSeed(1))
		path := slow.Plan(Vector2D{}, Vector2D{X: 1000})
		// 1000px at 100px/s dominates the Fitts estimate.
		assert.Equal(t, 10*time.Second, path.Duration)
	})

	t.Run("short moves fall back to Fitts", func(t *testing.T) {
		d := g.duration(20)
		assert.Equal(t, 180*time.Millisecond, d, "log2(1+20/20)=1 so A+B")
	})

	t.Run("points stay near the chord", func(t *testing.T) {
		start, end := Vector2D{X: 0, Y: 0}, Vector2D{X: 1000, Y: 0}
		path := g.Plan(start, end)
		for _, p := range path.Points {
			assert.LessOrEqual(t, math.Abs(p.Y), 0.2*1000+1)
		}
	})
}

func TestGlide(t *testing.T) {
	t.Run("dispatches every step", func(t *testing.T) {
		g := newTestGlider(t)
		mover := &recordingMover{}
		end := Vector2D{X: 300, Y: 200}

		require.NoError(t, g.Glide(context.Background(), mover, Vector2D{}, end))
		require.NotEmpty(t, mover.points)
		assert.Equal(t, end, mover.points[len(mover.points)-1])
	})

	t.Run("stops on dispatch failure", func(t *testing.T) {
		g := newTestGlider(t)
		mover := &recordingMover{failAt: 2}

		err := g.Glide(context.Background(), mover, Vector2D{}, Vector2D{X: 500, Y: 500})
		require.Error(t, err)
		assert.Len(t, mover.points, 1)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		g := newTestGlider(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mover := &recordingMover{}

		err := g.Glide(ctx, mover, Vector2D{}, Vector2D{X: 500, Y: 500})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, mover.points, 1, "the first step is dispatched before the first pause")
	})
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
