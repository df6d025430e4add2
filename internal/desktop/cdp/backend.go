// internal/desktop/cdp/backend.go
package cdp

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// wheelNotch is the pixel delta of one scroll notch.
const wheelNotch = 100.0

// runner executes chromedp actions against the controlled tab.
type runner func(ctx context.Context, actions ...chromedp.Action) error

// Backend implements schemas.Desktop on top of a Chrome tab. The tab is
// typically a remote-desktop web client, so the viewport is the desktop.
type Backend struct {
	logger   *zap.Logger
	run      runner
	maxWidth int

	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu        sync.Mutex
	pos       schemas.Position
	buttons   int64
	modifiers input.Modifier
}

var _ schemas.Desktop = (*Backend)(nil)

// New connects to a browser and opens the target page. With RemoteURL set it
// attaches to an already running browser; otherwise it launches one.
func New(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger) (*Backend, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOptions(cfg)...)
	}

	log := logger.Named("cdp")
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))

	b := newBackend(nil, log, cfg.MaxScreenshotWidth)
	b.tabCtx, b.cancelTab, b.cancelAlloc = tabCtx, tabCancel, allocCancel
	b.run = b.runInTab

	// The first Run starts the browser (or attaches to it).
	startup := []chromedp.Action{}
	if cfg.TargetURL != "" {
		startup = append(startup, chromedp.Navigate(cfg.TargetURL))
	}
	if err := chromedp.Run(tabCtx, startup...); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	log.Info("Desktop backend connected", zap.String("remote_url", cfg.RemoteURL), zap.String("target_url", cfg.TargetURL))
	return b, nil
}

func newBackend(run runner, logger *zap.Logger, maxWidth int) *Backend {
	return &Backend{logger: logger, run: run, maxWidth: maxWidth}
}

func execOptions(cfg config.DesktopConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// runInTab runs actions in the tab while honouring the caller's deadline.
func (b *Backend) runInTab(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("cdp: %w", ctx.Err())
	}
	return err
}

// Close tears down the tab and the allocator.
func (b *Backend) Close() {
	if b.cancelTab != nil {
		b.cancelTab()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
}

// -- Pointer --

func buttonBit(button schemas.MouseButton) int64 {
	switch button {
	case schemas.ButtonRight:
		return 2
	case schemas.ButtonMiddle:
		return 4
	}
	return 1
}

func cdpButton(button schemas.MouseButton) input.MouseButton {
	switch button {
	case schemas.ButtonRight:
		return input.Right
	case schemas.ButtonMiddle:
		return input.Middle
	}
	return input.Left
}

// MoveMouse dispatches a mouseMoved event, carrying any held buttons.
func (b *Backend) MoveMouse(ctx context.Context, x, y float64) error {
	b.mu.Lock()
	buttons, mods := b.buttons, b.modifiers
	b.mu.Unlock()

	p := input.DispatchMouseEvent(input.MouseMoved, x, y).WithModifiers(mods)
	if buttons > 0 {
		p = p.WithButtons(buttons).WithButton(input.Left)
	}
	if err := b.run(ctx, p); err != nil {
		return fmt.Errorf("cdp: mouse move to (%v, %v): %w", x, y, err)
	}

	b.mu.Lock()
	b.pos = schemas.Position{X: x, Y: y}
	b.mu.Unlock()
	return nil
}

// Click presses and releases button count times at the pointer position.
func (b *Backend) Click(ctx context.Context, button schemas.MouseButton, count int) error {
	b.mu.Lock()
	pos, mods := b.pos, b.modifiers
	b.mu.Unlock()

	actions := make([]chromedp.Action, 0, count*2)
	for i := 1; i <= count; i++ {
		actions = append(actions,
			input.DispatchMouseEvent(input.MousePressed, pos.X, pos.Y).
				WithButton(cdpButton(button)).WithButtons(buttonBit(button)).
				WithClickCount(int64(i)).WithModifiers(mods),
			input.DispatchMouseEvent(input.MouseReleased, pos.X, pos.Y).
				WithButton(cdpButton(button)).
				WithClickCount(int64(i)).WithModifiers(mods),
		)
	}
	if err := b.run(ctx, actions...); err != nil {
		return fmt.Errorf("cdp: %s click: %w", button, err)
	}
	return nil
}

// PressButton holds a button down at the pointer position.
func (b *Backend) PressButton(ctx context.Context, button schemas.MouseButton) error {
	b.mu.Lock()
	pos, mods := b.pos, b.modifiers
	held := b.buttons | buttonBit(button)
	b.mu.Unlock()

	p := input.DispatchMouseEvent(input.MousePressed, pos.X, pos.Y).
		WithButton(cdpButton(button)).WithButtons(held).WithClickCount(1).WithModifiers(mods)
	if err := b.run(ctx, p); err != nil {
		return fmt.Errorf("cdp: press %s button: %w", button, err)
	}
	b.mu.Lock()
	b.buttons = held
	b.mu.Unlock()
	return nil
}

// ReleaseButton releases a held button. The local state is cleared even when
// dispatch fails so a later move does not report a phantom drag.
func (b *Backend) ReleaseButton(ctx context.Context, button schemas.MouseButton) error {
	b.mu.Lock()
	pos, mods := b.pos, b.modifiers
	b.buttons &^= buttonBit(button)
	remaining := b.buttons
	b.mu.Unlock()

	p := input.DispatchMouseEvent(input.MouseReleased, pos.X, pos.Y).
		WithButton(cdpButton(button)).WithButtons(remaining).WithClickCount(1).WithModifiers(mods)
	if err := b.run(ctx, p); err != nil {
		return fmt.Errorf("cdp: release %s button: %w", button, err)
	}
	return nil
}

// Scroll dispatches a wheel event at the pointer position.
func (b *Backend) Scroll(ctx context.Context, direction schemas.ScrollDirection, amount int) error {
	b.mu.Lock()
	pos := b.pos
	b.mu.Unlock()

	var dx, dy float64
	delta := float64(amount) * wheelNotch
	switch direction {
	case schemas.ScrollUp:
		dy = -delta
	case schemas.ScrollDown:
		dy = delta
	case schemas.ScrollLeft:
		dx = -delta
	case schemas.ScrollRight:
		dx = delta
	default:
		return fmt.Errorf("cdp: unknown scroll direction %q", direction)
	}

	p := input.DispatchMouseEvent(input.MouseWheel, pos.X, pos.Y).WithDeltaX(dx).WithDeltaY(dy)
	if err := b.run(ctx, p); err != nil {
		return fmt.Errorf("cdp: scroll %s: %w", direction, err)
	}
	return nil
}

// PointerPosition returns the last position this backend moved the pointer to.
func (b *Backend) PointerPosition(ctx context.Context) (schemas.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos, nil
}

// -- Screen --

type viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const viewportScript = `({width: window.innerWidth, height: window.innerHeight})`

// ScreenSize returns the viewport size in CSS pixels.
func (b *Backend) ScreenSize(ctx context.Context) (schemas.Dimensions, error) {
	var vp viewport
	if err := b.run(ctx, chromedp.Evaluate(viewportScript, &vp)); err != nil {
		return schemas.Dimensions{}, fmt.Errorf("cdp: read viewport size: %w", err)
	}
	return schemas.Dimensions{Width: int(vp.Width), Height: int(vp.Height)}, nil
}

// CaptureScreen captures the viewport as PNG, scaled down so the image is at
// most the configured width. Dimensions report the unscaled size.
func (b *Backend) CaptureScreen(ctx context.Context) (*schemas.Screenshot, error) {
	var vp viewport
	var data []byte
	err := b.run(ctx,
		chromedp.Evaluate(viewportScript, &vp),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{X: 0, Y: 0, Width: vp.Width, Height: vp.Height, Scale: captureScale(vp.Width, b.maxWidth)}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("cdp: capture screenshot: %w", err)
	}
	return &schemas.Screenshot{
		Image:      data,
		Format:     "png",
		Dimensions: schemas.Dimensions{Width: int(vp.Width), Height: int(vp.Height)},
		Timestamp:  time.Now(),
	}, nil
}

// captureScale never enlarges.
func captureScale(width float64, maxWidth int) float64 {
	if maxWidth <= 0 || width <= float64(maxWidth) || width <= 0 {
		return 1
	}
	return math.Floor(float64(maxWidth)/width*1000) / 1000
}
