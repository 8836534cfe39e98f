package color

// HSVToRGB converts one 8-bit HSV triple to RGB. Hue wraps over the full
// byte range (0..255 maps to 0..360 degrees).
func HSVToRGB(hue, saturation, value uint8) (r, g, b uint8) {
	h := float64(hue) / 255.0 * 6.0
	s := float64(saturation) / 255.0
	v := float64(value) / 255.0

	c := v * s
	seg := h
	for seg >= 2 {
		seg -= 2
	}
	x := c * (1 - abs(seg-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 1:
		rf, gf, bf = c, x, 0
	case h < 2:
		rf, gf, bf = x, c, 0
	case h < 3:
		rf, gf, bf = 0, c, x
	case h < 4:
		rf, gf, bf = 0, x, c
	case h < 5:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	return uint8((rf + m) * 255), uint8((gf + m) * 255), uint8((bf + m) * 255)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
