// internal/desktop/cdp/keyboard.go
package cdp

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// namedKeys maps canonical key names to their chromedp/kb encodings.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"Space":      " ",
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"Home":       kb.Home,
	"End":        kb.End,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"Insert":     kb.Insert,
	"F1":         kb.F1,
	"F2":         kb.F2,
	"F3":         kb.F3,
	"F4":         kb.F4,
	"F5":         kb.F5,
	"F6":         kb.F6,
	"F7":         kb.F7,
	"F8":         kb.F8,
	"F9":         kb.F9,
	"F10":        kb.F10,
	"F11":        kb.F11,
	"F12":        kb.F12,
	"Control":    kb.Control,
	"Alt":        kb.Alt,
	"Shift":      kb.Shift,
	"Meta":       kb.Meta,
}

var modifierBits = map[string]input.Modifier{
	"Control": input.ModifierCtrl,
	"Alt":     input.ModifierAlt,
	"Shift":   input.ModifierShift,
	"Meta":    input.ModifierMeta,
}

// lookupKey resolves a canonical key name or a single character.
func lookupKey(name string) (*kb.Key, error) {
	encoded, ok := namedKeys[name]
	if !ok {
		if utf8.RuneCountInString(name) != 1 {
			return nil, fmt.Errorf("cdp: unknown key %q", name)
		}
		encoded = name
	}
	r, _ := utf8.DecodeRuneInString(encoded)
	if k, ok := kb.Keys[r]; ok {
		return k, nil
	}
	// Characters outside the US layout are sent as text only.
	return &kb.Key{Key: encoded, Text: encoded, Unmodified: encoded, Print: true}, nil
}

// keyEvent builds a keyDown or keyUp for k. Printable keys carry text only
// when no command modifier is held, so ctrl+s does not insert an "s".
func keyEvent(typ input.KeyType, k *kb.Key, mods input.Modifier) *input.DispatchKeyEventParams {
	p := input.DispatchKeyEvent(typ).
		WithKey(k.Key).
		WithCode(k.Code).
		WithNativeVirtualKeyCode(k.Native).
		WithWindowsVirtualKeyCode(k.Windows).
		WithModifiers(mods)
	if typ == input.KeyDown && k.Print && mods&^input.ModifierShift == 0 {
		p = p.WithText(k.Text).WithUnmodifiedText(k.Unmodified)
	}
	return p
}

// PressKey holds a key down. Modifier keys are remembered and applied to
// every following event until released.
func (b *Backend) PressKey(ctx context.Context, key string) error {
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	b.mu.Lock()
	mods := b.modifiers | modifierBits[key]
	b.mu.Unlock()

	if err := b.run(ctx, keyEvent(input.KeyDown, k, mods)); err != nil {
		return fmt.Errorf("cdp: key down %s: %w", key, err)
	}
	b.mu.Lock()
	b.modifiers = mods
	b.mu.Unlock()
	return nil
}

// ReleaseKey releases a held key. Modifier state is cleared even when the
// dispatch fails.
func (b *Backend) ReleaseKey(ctx context.Context, key string) error {
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.modifiers &^= modifierBits[key]
	mods := b.modifiers
	b.mu.Unlock()

	if err := b.run(ctx, keyEvent(input.KeyUp, k, mods)); err != nil {
		return fmt.Errorf("cdp: key up %s: %w", key, err)
	}
	return nil
}

// TapKey presses and releases a key with the currently held modifiers.
func (b *Backend) TapKey(ctx context.Context, key string) error {
	k, err := lookupKey(key)
	if err != nil {
		return err
	}
	b.mu.Lock()
	mods := b.modifiers
	b.mu.Unlock()

	if err := b.run(ctx, keyEvent(input.KeyDown, k, mods), keyEvent(input.KeyUp, k, mods)); err != nil {
		return fmt.Errorf("cdp: tap %s: %w", key, err)
	}
	return nil
}

// TypeText types text as individual key events.
func (b *Backend) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := b.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("cdp: type text: %w", err)
	}
	return nil
}
