package platform

// TitlebarHeight is the height of the shell's custom titlebar in logical
// pixels. Content layout offsets below it.
const TitlebarHeight = 32.0

// Bounds is a rectangle in physical (device) pixels.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ContentBounds computes the content region of a window whose top
// titlebarHeight logical pixels are occupied by the custom titlebar.
// windowWidth and windowHeight are physical pixels; scale is the window's
// DPI scale factor. The height clamps to zero when the window is shorter
// than the titlebar.
func ContentBounds(windowWidth, windowHeight int, scale, titlebarHeight float64) Bounds {
	titlebarPhys := int(titlebarHeight * scale)

	height := 0
	if windowHeight > titlebarPhys {
		height = windowHeight - titlebarPhys
	}

	return Bounds{
		X:      0,
		Y:      titlebarPhys,
		Width:  windowWidth,
		Height: height,
	}
}
