package anydata

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/unixpickle/essentials"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Per-channel statistics used to normalize images.
var (
	ImageNetMean = [3]float64{0.485, 0.456, 0.406}
	ImageNetSTD  = [3]float64{0.229, 0.224, 0.225}
)

// LoadImage decodes an image file, resizes it to a
// size*size square and normalizes it.
func LoadImage(path string, size int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, essentials.AddCtx("load image", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, essentials.AddCtx("load image "+path, err)
	}
	return ImageTensor(Resize(img, size), ImageNetMean, ImageNetSTD), nil
}

// Resize scales an image to a size*size square with
// bilinear interpolation, dropping any alpha channel by
// drawing over white.
func Resize(img image.Image, size int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// ImageTensor converts an image to a row-major tensor of
// RGB values.
// Each channel is scaled to [0, 1] and then normalized
// with the given mean and standard deviation.
func ImageTensor(img image.Image, mean, std [3]float64) []float64 {
	b := img.Bounds()
	res := make([]float64, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			for i, comp := range []uint32{r, g, bl} {
				res = append(res, (float64(comp)/0xffff-mean[i])/std[i])
			}
		}
	}
	return res
}
