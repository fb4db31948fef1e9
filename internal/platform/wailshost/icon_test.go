package wailshost

import (
	"bytes"
	"image/png"
	"testing"
)

func readU16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func readU32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func TestTrayIconCoverage(t *testing.T) {
	img := drawTrayIcon()

	if got := img.Bounds().Dx(); got != trayIconSize {
		t.Fatalf("icon width = %d, want %d", got, trayIconSize)
	}
	// Body pixels are opaque, corners transparent.
	if a := img.NRGBAAt(16, 10).A; a == 0 {
		t.Fatal("crown center is transparent, want body coverage")
	}
	if a := img.NRGBAAt(16, 20).A; a == 0 {
		t.Fatal("pavilion center is transparent, want body coverage")
	}
	if a := img.NRGBAAt(0, 0).A; a != 0 {
		t.Fatalf("corner alpha = %d, want 0", a)
	}
	if a := img.NRGBAAt(2, 8).A; a != 0 {
		t.Fatalf("pixel outside the crown has alpha %d, want 0", a)
	}
	// The girdle groove only darkens, never cuts a hole.
	if a := img.NRGBAAt(16, 13).A; a == 0 {
		t.Fatal("girdle groove is transparent, want darkened body")
	}
}

func TestEncodeTrayICOLayout(t *testing.T) {
	data := encodeTrayICO(drawTrayIcon())

	const (
		dirSize   = 6
		entrySize = 16
		dibHeader = 40
		xorBytes  = trayIconSize * trayIconSize * 4
		maskBytes = (trayIconSize / 8) * trayIconSize
	)
	wantLen := dirSize + entrySize + dibHeader + xorBytes + maskBytes
	if len(data) != wantLen {
		t.Fatalf("ICO length = %d, want %d", len(data), wantLen)
	}

	if readU16(data, 0) != 0 || readU16(data, 2) != 1 || readU16(data, 4) != 1 {
		t.Fatalf("ICONDIR = % x, want reserved=0 type=1 count=1", data[:6])
	}
	if data[6] != trayIconSize || data[7] != trayIconSize {
		t.Fatalf("entry dimensions = %dx%d, want %dx%d", data[6], data[7], trayIconSize, trayIconSize)
	}
	if readU16(data, 12) != 32 {
		t.Fatalf("entry bit count = %d, want 32", readU16(data, 12))
	}
	if got := readU32(data, 14); got != uint32(dibHeader+xorBytes+maskBytes) {
		t.Fatalf("entry resource size = %d, want %d", got, dibHeader+xorBytes+maskBytes)
	}
	if got := readU32(data, 18); got != dirSize+entrySize {
		t.Fatalf("entry data offset = %d, want %d", got, dirSize+entrySize)
	}

	// BITMAPINFOHEADER: doubled height covers the XOR and AND planes.
	dib := data[dirSize+entrySize:]
	if readU32(dib, 0) != dibHeader {
		t.Fatalf("biSize = %d, want %d", readU32(dib, 0), dibHeader)
	}
	if readU32(dib, 4) != trayIconSize || readU32(dib, 8) != trayIconSize*2 {
		t.Fatalf("biWidth x biHeight = %d x %d, want %d x %d",
			readU32(dib, 4), readU32(dib, 8), trayIconSize, trayIconSize*2)
	}
	if readU16(dib, 12) != 1 || readU16(dib, 14) != 32 {
		t.Fatalf("biPlanes/biBitCount = %d/%d, want 1/32", readU16(dib, 12), readU16(dib, 14))
	}
}

func TestEncodeTrayPNGDecodes(t *testing.T) {
	data := encodeTrayPNG(drawTrayIcon())

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode() returned error: %v", err)
	}
	if img.Bounds().Dx() != trayIconSize || img.Bounds().Dy() != trayIconSize {
		t.Fatalf("decoded bounds = %v, want %dx%d", img.Bounds(), trayIconSize, trayIconSize)
	}
}
