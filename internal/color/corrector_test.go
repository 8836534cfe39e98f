package color

import "testing"

func TestNewCorrector_RejectsBadOptions(t *testing.T) {
	bad := WS2812BOptions()
	bad.Gamma[1] = 0
	if _, err := NewCorrector(bad); err == nil {
		t.Fatalf("expected error for zero gamma")
	}
	bad = WS2812BOptions()
	bad.Brightness[2] = -1
	if _, err := NewCorrector(bad); err == nil {
		t.Fatalf("expected error for negative brightness")
	}
}

func TestCorrector_IdentityWithNeutralOptions(t *testing.T) {
	c, err := NewCorrector(CorrectorOptions{
		Gamma:      [Channels]float64{1, 1, 1},
		Brightness: [Channels]float64{100, 100, 100},
	})
	if err != nil {
		t.Fatalf("new corrector: %v", err)
	}
	for v := 0; v < 256; v++ {
		px := []byte{byte(v), byte(v), byte(v)}
		c.Correct(px)
		for ch := 0; ch < Channels; ch++ {
			if px[ch] != byte(v) {
				t.Fatalf("forward channel %d value %d: got %d, want identity", ch, v, px[ch])
			}
		}
		c.ReverseCorrect(px)
		for ch := 0; ch < Channels; ch++ {
			if px[ch] != byte(v) {
				t.Fatalf("reverse channel %d value %d: got %d, want identity", ch, v, px[ch])
			}
		}
	}
}

// The forward table quantizes hard at the bottom of the range (a dim channel
// has far fewer than 256 distinct drive levels), so the meaningful round-trip
// statement is that a reconstructed show value drives the LED identically,
// and that full scale survives exactly.
func TestCorrector_RoundTrip(t *testing.T) {
	c, err := NewCorrector(WS2812BOptions())
	if err != nil {
		t.Fatalf("new corrector: %v", err)
	}

	for ch := 0; ch < Channels; ch++ {
		for v := 0; v < 256; v++ {
			drive := c.forward[ch][v]
			show := c.reverse[ch][drive]
			if show < uint8(v) {
				t.Fatalf("channel %d value %d: reverse(%d)=%d lost intensity", ch, v, drive, show)
			}
			if c.forward[ch][show] != drive {
				t.Fatalf("channel %d value %d: round trip drives %d, want %d",
					ch, v, c.forward[ch][show], drive)
			}
		}
		if got := c.reverse[ch][c.forward[ch][255]]; got != 255 {
			t.Fatalf("channel %d: full scale round trip got %d", ch, got)
		}
	}
}

// Drive-side round trip: re-correcting a reverse-corrected drive value must
// land back on (nearly) the same drive value, for every reachable level.
func TestCorrector_DriveRoundTripBounded(t *testing.T) {
	c, err := NewCorrector(WS2812BOptions())
	if err != nil {
		t.Fatalf("new corrector: %v", err)
	}
	for ch := 0; ch < Channels; ch++ {
		max := int(c.forward[ch][255])
		for k := 0; k <= max; k++ {
			show := c.reverse[ch][k]
			back := int(c.forward[ch][show])
			if back < k || back > k+3 {
				t.Fatalf("channel %d drive %d: came back as %d", ch, k, back)
			}
		}
	}
}

func TestCorrector_BrightnessNormalizedAgainstDimmest(t *testing.T) {
	opts := WS2812BOptions()
	c, err := NewCorrector(opts)
	if err != nil {
		t.Fatalf("new corrector: %v", err)
	}

	// Blue is the dimmest WS2812B channel: it keeps the full range.
	if got := c.forward[2][255]; got != 255 {
		t.Fatalf("dimmest channel full scale: got %d, want 255", got)
	}
	// Brighter channels are scaled down, never past full scale.
	for ch := 0; ch < Channels; ch++ {
		prev := -1
		for v := 0; v < 256; v++ {
			cur := int(c.forward[ch][v])
			if cur < prev {
				t.Fatalf("channel %d: forward table not monotonic at %d", ch, v)
			}
			prev = cur
		}
		want := 255 * opts.Brightness[2] / opts.Brightness[ch]
		got := float64(c.forward[ch][255])
		if got < want || got > want+1 {
			t.Fatalf("channel %d full scale: got %v, want ceil(%v)", ch, got, want)
		}
	}
}

func TestCorrectPixels_WholeBuffer(t *testing.T) {
	c, err := NewCorrector(CorrectorOptions{
		Gamma:      [Channels]float64{1, 1, 1},
		Brightness: [Channels]float64{200, 100, 100},
	})
	if err != nil {
		t.Fatalf("new corrector: %v", err)
	}
	buf := []byte{200, 200, 200, 100, 100, 100, 7} // trailing byte is left alone
	c.CorrectPixels(buf)
	if buf[0] != 100 || buf[1] != 200 || buf[2] != 200 {
		t.Fatalf("first pixel: got %v", buf[:3])
	}
	if buf[3] != 50 || buf[4] != 100 || buf[5] != 100 {
		t.Fatalf("second pixel: got %v", buf[3:6])
	}
	if buf[6] != 7 {
		t.Fatalf("trailing byte touched: %d", buf[6])
	}
}

func TestHSVToRGB(t *testing.T) {
	cases := []struct {
		h, s, v uint8
		r, g, b uint8
	}{
		{0, 255, 255, 255, 0, 0},
		{0, 0, 255, 255, 255, 255},
		{0, 0, 0, 0, 0, 0},
		{85, 255, 255, 0, 255, 0},  // hue 1/3: pure green
		{170, 255, 255, 0, 0, 255}, // hue 2/3: pure blue
	}
	for _, tc := range cases {
		r, g, b := HSVToRGB(tc.h, tc.s, tc.v)
		if r != tc.r || g != tc.g || b != tc.b {
			t.Fatalf("hsv(%d,%d,%d): got (%d,%d,%d), want (%d,%d,%d)",
				tc.h, tc.s, tc.v, r, g, b, tc.r, tc.g, tc.b)
		}
	}
}
