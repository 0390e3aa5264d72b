package pipeline

import "github.com/vidqr/vidqr/pkg/qr"

// scaleGrayToRGB nearest-neighbor scales a grayscale QR image up to an
// RGB frame of outW x outH, replicating the gray value into all three
// channels. Each axis is scaled independently, as the design calls for.
func scaleGrayToRGB(img qr.Image, outW, outH int) []byte {
	out := make([]byte, outW*outH*3)
	for y := 0; y < outH; y++ {
		sy := y * img.Height / outH
		for x := 0; x < outW; x++ {
			sx := x * img.Width / outW
			v := img.Pixels[sy*img.Width+sx]
			idx := (y*outW + x) * 3
			out[idx] = v
			out[idx+1] = v
			out[idx+2] = v
		}
	}
	return out
}

// downsampleToGray nearest-neighbor downsamples an RGB frame back to a
// outW x outH grayscale grid, reading the red channel (the three
// channels are identical, since scaleGrayToRGB wrote the same value to
// all of them).
func downsampleToGray(rgb []byte, inW, inH, outW, outH int) []byte {
	out := make([]byte, outW*outH)
	for y := 0; y < outH; y++ {
		sy := y * inH / outH
		for x := 0; x < outW; x++ {
			sx := x * inW / outW
			idx := (sy*inW + sx) * 3
			out[y*outW+x] = rgb[idx]
		}
	}
	return out
}
