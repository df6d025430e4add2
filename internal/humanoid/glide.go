// internal/humanoid/glide.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

// PointerMover is the single primitive a glide needs.
type PointerMover interface {
	MoveMouse(ctx context.Context, x, y float64) error
}

// Path is a precomputed glide.
type Path struct {
	Points   []Vector2D
	Duration time.Duration
}

// Glider moves the pointer along a curved, eased path instead of teleporting.
type Glider struct {
	cfg    config.HumanoidConfig
	speed  float64
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Glider.
type Option func(*Glider)

// WithSeed makes path generation deterministic.
func WithSeed(seed int64) Option {
	return func(g *Glider) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithSleeper replaces the wall-clock pause between steps.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Glider) { g.sleep = fn }
}

// NewGlider builds a glider for pointer speed pxPerSecond.
func NewGlider(cfg config.HumanoidConfig, pxPerSecond float64, logger *zap.Logger, opts ...Option) *Glider {
	g := &Glider{
		cfg:    cfg,
		speed:  pxPerSecond,
		logger: logger.Named("humanoid"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// computeEaseInOutCubic accelerates through the first half and decelerates through the second.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// duration is the larger of the speed-bound travel time and the Fitts's law estimate.
func (g *Glider) duration(distance float64) time.Duration {
	id := math.Log2(1.0 + distance/g.cfg.TargetWidth)
	fitts := g.cfg.FittsA + time.Duration(float64(g.cfg.FittsB)*id)
	var travel time.Duration
	if g.speed > 0 {
		travel = time.Duration(distance / g.speed * float64(time.Second))
	}
	if travel > fitts {
		return travel
	}
	return fitts
}

// Plan computes the glide from start to end. The last point is always end.
func (g *Glider) Plan(start, end Vector2D) Path {
	dist := start.Dist(end)
	if dist < 1.0 {
		return Path{Points: []Vector2D{end}}
	}

	d := g.duration(dist)
	numSteps := 2
	if g.cfg.StepInterval > 0 {
		numSteps = int(d / g.cfg.StepInterval)
	}
	if numSteps < 2 {
		numSteps = 2
	}
	if g.cfg.MaxSteps > 0 && numSteps > g.cfg.MaxSteps {
		numSteps = g.cfg.MaxSteps
	}

	// Control points sit at one and two thirds of the chord, pushed sideways.
	dir := end.Sub(start).Normalize()
	normal := dir.Perp()
	g.mu.Lock()
	off1 := (g.rng.Float64()*2 - 1) * g.cfg.CurveSpread * dist
	off2 := (g.rng.Float64()*2 - 1) * g.cfg.CurveSpread * dist
	g.mu.Unlock()
	p0, p3 := start, end
	p1 := start.Add(dir.Mul(dist / 3.0)).Add(normal.Mul(off1))
	p2 := start.Add(dir.Mul(dist * 2.0 / 3.0)).Add(normal.Mul(off2))

	points := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := computeEaseInOutCubic(float64(i+1) / float64(numSteps))
		omt := 1.0 - t
		omt2 := omt * omt
		t2 := t * t
		points[i] = p0.Mul(omt2 * omt).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t2 * t)).Round()
	}
	points[numSteps-1] = end
	return Path{Points: points, Duration: d}
}

// Glide moves the pointer from start to end through mover, pausing between
// steps so the whole move takes about Plan's duration.
func (g *Glider) Glide(ctx context.Context, mover PointerMover, start, end Vector2D) error {
	path := g.Plan(start, end)
	step := time.Duration(0)
	if n := len(path.Points); n > 1 {
		step = path.Duration / time.Duration(n)
	}

	for i, p := range path.Points {
		if err := mover.MoveMouse(ctx, p.X, p.Y); err != nil {
			if ctx.Err() == nil {
				g.logger.Warn("Failed to dispatch glide step", zap.Int("step", i), zap.Error(err))
			}
			return err
		}
		if i < len(path.Points)-1 {
			if err := g.sleep(ctx, step); err != nil {
				return err
			}
		}
	}
	return nil
}
