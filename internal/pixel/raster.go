package pixel

// Raster is a free-standing voxel volume used on the sending side: test
// patterns draw into it and the Art-Net controller slices it into universes.
type Raster struct {
	Width  int
	Height int
	Length int

	// Brightness scales every channel at send time, 0..1.
	Brightness float64

	// Data is packed RGB, x fastest, then y, then z.
	Data []byte
}

// NewRaster allocates a black raster at full brightness.
func NewRaster(width, height, length int) *Raster {
	return &Raster{
		Width:      width,
		Height:     height,
		Length:     length,
		Brightness: 1.0,
		Data:       make([]byte, width*height*length*3),
	}
}

func (r *Raster) index(x, y, z int) (int, bool) {
	if x < 0 || x >= r.Width || y < 0 || y >= r.Height || z < 0 || z >= r.Length {
		return 0, false
	}
	return (z*r.Width*r.Height + y*r.Width + x) * 3, true
}

// SetPix sets one voxel; out-of-range coordinates are ignored.
func (r *Raster) SetPix(x, y, z int, red, green, blue uint8) {
	if i, ok := r.index(x, y, z); ok {
		r.Data[i] = red
		r.Data[i+1] = green
		r.Data[i+2] = blue
	}
}

// Pix reads one voxel; out-of-range coordinates read black.
func (r *Raster) Pix(x, y, z int) (red, green, blue uint8) {
	if i, ok := r.index(x, y, z); ok {
		return r.Data[i], r.Data[i+1], r.Data[i+2]
	}
	return 0, 0, 0
}

// Layer returns the packed RGB bytes of one Z slice, or nil out of range.
func (r *Raster) Layer(z int) []byte {
	if z < 0 || z >= r.Length {
		return nil
	}
	n := r.Width * r.Height * 3
	return r.Data[z*n : (z+1)*n]
}

// Clear blacks the whole raster.
func (r *Raster) Clear() {
	for i := range r.Data {
		r.Data[i] = 0
	}
}
