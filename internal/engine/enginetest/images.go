package enginetest

import "vektor/internal/engine"

// Blank returns a uniform opaque image.
func Blank(width, height int, v byte) engine.PixelBuffer {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 0xff
	}
	return engine.PixelBuffer{Width: width, Height: height, Pix: pix}
}

// Square returns a black image with a coloured filled square in the middle.
func Square(width, height int, c engine.RGB) engine.PixelBuffer {
	buf := Blank(width, height, 0)
	n := c.NRGBA()
	for y := height / 4; y < 3*height/4; y++ {
		for x := width / 4; x < 3*width/4; x++ {
			i := 4 * (y*width + x)
			buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = n.R, n.G, n.B
		}
	}
	return buf
}
