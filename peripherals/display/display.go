// Package display implements the SH1106 OLED framebuffer driver from
// original_source/oled_sh1106_nrf52/oled_SH1106.c: an 8-page x 128-column
// byte buffer (dispBuffer), pixel/line/rectangle drawing on top of it, and
// a Flush that hands completed pages to a Transport in place of the
// original's direct I2C command/data writes. Character/7-segment font
// rendering (oled_printChar/oled_print7Seg_digit) and the bar/battery/
// signal-indicator glyphs are out of scope: this package covers the pixel
// framebuffer and its geometry primitives, which is what SPEC_FULL.md's
// telemetry display needs, not a full UI toolkit.
package display

import "errors"

// Width and Pages are the SH1106 panel dimensions (dispBuffer[8][128];
// pixel rows = Pages*8 = 64).
const (
	Width  = 128
	Pages  = 8
	Height = Pages * 8
)

// ErrOutOfBounds is returned by SetPixel for coordinates outside the panel.
var ErrOutOfBounds = errors.New("display: coordinate out of bounds")

// Transport sends one fully-assembled page (128 bytes) to the panel
// (oled_display's per-page oled_setCursorPos + I2C burst write, collapsed
// to one call per page here since this package has no raw I2C command
// byte sequence to replicate).
type Transport interface {
	WritePage(page uint8, data []byte) error
}

// Panel is the framebuffer oled_setPixel mutates (dispBuffer). It keeps no
// cursor state (disp_row, disp_column); each page is written whole.
type Panel struct {
	buf   [Pages][Width]uint8
	xport Transport
}

// New creates a Panel bound to a Transport.
func New(xport Transport) *Panel {
	return &Panel{xport: xport}
}

// cursor is oled_setCursor: translate a pixel coordinate into a
// (page, column) framebuffer cell.
func cursor(x, y uint8) (page uint8, column uint8) {
	return y / 8, x
}

// Clear zeroes the whole framebuffer (oled_clearDisplay's buffer-side
// effect; the original also calls oled_display() itself, left to the
// caller here so Clear composes with other drawing before one Flush).
func (p *Panel) Clear() {
	for page := range p.buf {
		for col := range p.buf[page] {
			p.buf[page][col] = 0
		}
	}
}

// ClearPart zeroes columns [startPos, endPos] of one page (oled_clearPart).
func (p *Panel) ClearPart(page, startPos, endPos uint8) error {
	if int(page) >= Pages || startPos > endPos || int(endPos) >= Width {
		return ErrOutOfBounds
	}
	for col := startPos; col <= endPos; col++ {
		p.buf[page][col] = 0
	}
	return nil
}

// SetPixel sets or clears one pixel (oled_setPixel: locate the byte via
// oled_setCursor, then OR or AND-NOT the bit for y%8 within it).
func (p *Panel) SetPixel(x, y uint8, set bool) error {
	if int(x) >= Width || int(y) >= Height {
		return ErrOutOfBounds
	}
	page, col := cursor(x, y)
	shift := y % 8
	if set {
		p.buf[page][col] |= 1 << shift
	} else {
		p.buf[page][col] &^= 1 << shift
	}
	return nil
}

// DrawLine draws a line between two points (oled_drawLine): the vertical
// case is handled separately since the original's slope-based stepping is
// undefined for x1==x2, exactly as its comment notes.
func (p *Panel) DrawLine(x1, y1, x2, y2 int, set bool) {
	if x1 == x2 {
		lo, hi := y1, y2
		if lo > hi {
			lo, hi = hi, lo
		}
		for y := lo; y <= hi; y++ {
			p.setPixelClamped(x1, y, set)
		}
		return
	}

	slope := float64(y2-y1) / float64(x2-x1)
	c := float64(y1) - slope*float64(x1)

	lo, hi := x1, x2
	if lo > hi {
		lo, hi = hi, lo
	}
	for x := lo; x <= hi; x++ {
		y := int(slope*float64(x) + c)
		p.setPixelClamped(x, y, set)
	}
}

func (p *Panel) setPixelClamped(x, y int, set bool) {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return
	}
	p.SetPixel(uint8(x), uint8(y), set)
}

// DrawRectangle draws an axis-aligned rectangle's four edges
// (oled_drawRectangle: four DrawLine calls).
func (p *Panel) DrawRectangle(x1, y1, x2, y2 uint8, set bool) {
	p.DrawLine(int(x1), int(y1), int(x1), int(y2), set)
	p.DrawLine(int(x2), int(y1), int(x2), int(y2), set)
	p.DrawLine(int(x1), int(y1), int(x2), int(y1), set)
	p.DrawLine(int(x1), int(y2), int(x2), int(y2), set)
}

// Flush sends every page to the Transport (oled_display's per-page loop).
func (p *Panel) Flush() error {
	for page := 0; page < Pages; page++ {
		if err := p.xport.WritePage(uint8(page), p.buf[page][:]); err != nil {
			return err
		}
	}
	return nil
}
