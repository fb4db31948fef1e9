package wailshost

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// trayIconSize is the icon edge in pixels. 32 scales cleanly at the common
// tray DPI settings.
const trayIconSize = 32

// drawTrayIcon renders the gem mark: a light brilliant-cut diamond on a
// transparent background, antialiased per pixel so it stays crisp on both
// light and dark taskbars.
func drawTrayIcon() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, trayIconSize, trayIconSize))
	for y := 0; y < trayIconSize; y++ {
		for x := 0; x < trayIconSize; x++ {
			fx := float64(x) + 0.5
			fy := float64(y) + 0.5
			alpha := gemCoverage(fx, fy)
			if alpha <= 0 {
				continue
			}
			shade := gemShade(fx, fy)
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(240 * shade),
				G: uint8(244 * shade),
				B: uint8(255 * shade),
				A: uint8(255 * alpha),
			})
		}
	}
	return img
}

// Gem geometry: flat table on top, widest at the girdle, tapering to the
// culet point.
const (
	gemCenterX = 16.0
	gemTopY    = 7.0
	gemGirdleY = 13.0
	gemCuletY  = 27.0
	tableHalf  = 6.0
	girdleHalf = 10.0
)

// gemCoverage returns the pixel's body coverage in [0, 1].
func gemCoverage(fx, fy float64) float64 {
	hw := gemHalfWidth(fy)
	if hw < 0 {
		return 0
	}
	horizontal := clamp01(hw + 0.5 - math.Abs(fx-gemCenterX))
	top := clamp01(fy - (gemTopY - 0.5))
	bottom := clamp01((gemCuletY + 0.5) - fy)
	return horizontal * top * bottom
}

// gemHalfWidth returns the gem's half width at a given y, negative outside
// the body.
func gemHalfWidth(fy float64) float64 {
	switch {
	case fy < gemTopY-0.5 || fy > gemCuletY+0.5:
		return -1
	case fy <= gemGirdleY:
		t := clamp01((fy - gemTopY) / (gemGirdleY - gemTopY))
		return tableHalf + (girdleHalf-tableHalf)*t
	default:
		t := clamp01((fy - gemGirdleY) / (gemCuletY - gemGirdleY))
		return girdleHalf * (1 - t)
	}
}

// gemShade darkens facet grooves: the girdle line and the pavilion's center
// ridge.
func gemShade(fx, fy float64) float64 {
	shade := 1.0
	if d := math.Abs(fy - gemGirdleY); d < 1.2 {
		shade = math.Min(shade, 0.45+0.55*clamp01((d-0.4)/0.8))
	}
	if fy > gemGirdleY+0.5 {
		if d := math.Abs(fx - gemCenterX); d < 1.2 {
			shade = math.Min(shade, 0.55+0.45*clamp01((d-0.4)/0.8))
		}
	}
	return shade
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// encodeTrayPNG wraps the icon in a PNG, the format tray implementations
// expect outside Windows.
func encodeTrayPNG(img *image.NRGBA) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// encodeTrayICO wraps the icon in a single-entry ICO container holding a
// classic 32bpp DIB frame: BITMAPINFOHEADER with doubled height, bottom-up
// BGRA rows with straight alpha, then an all-zero AND mask. Every supported
// Windows version loads this.
func encodeTrayICO(img *image.NRGBA) []byte {
	size := img.Rect.Dx()

	xor := make([]byte, 0, size*size*4)
	for y := size - 1; y >= 0; y-- {
		row := img.Pix[img.PixOffset(0, y) : img.PixOffset(0, y)+size*4]
		for x := 0; x < len(row); x += 4 {
			xor = append(xor, row[x+2], row[x+1], row[x], row[x+3])
		}
	}
	maskStride := ((size + 31) / 32) * 4
	mask := make([]byte, maskStride*size)

	// BITMAPINFOHEADER: height doubled to cover XOR plus AND planes.
	dib := make([]byte, 0, 40+len(xor)+len(mask))
	dib = appendU32(dib, 40)
	dib = appendU32(dib, uint32(size))
	dib = appendU32(dib, uint32(size*2))
	dib = appendU16(dib, 1)  // planes
	dib = appendU16(dib, 32) // bits per pixel
	dib = appendU32(dib, 0)  // BI_RGB
	dib = appendU32(dib, uint32(len(xor)+len(mask)))
	dib = appendU32(dib, 0) // x pixels per meter
	dib = appendU32(dib, 0) // y pixels per meter
	dib = appendU32(dib, 0) // colors used
	dib = appendU32(dib, 0) // important colors
	dib = append(dib, xor...)
	dib = append(dib, mask...)

	const (
		dirSize   = 6
		entrySize = 16
	)
	out := make([]byte, 0, dirSize+entrySize+len(dib))
	out = appendU16(out, 0) // reserved
	out = appendU16(out, 1) // type: icon
	out = appendU16(out, 1) // image count
	out = append(out, byte(size), byte(size), 0, 0)
	out = appendU16(out, 1)  // planes
	out = appendU16(out, 32) // bits per pixel
	out = appendU32(out, uint32(len(dib)))
	out = appendU32(out, dirSize+entrySize)
	out = append(out, dib...)
	return out
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
