package fingerprint

import (
	"image"
	"image/color"
	"testing"
)

func TestText(t *testing.T) {
	base := "the quick brown fox jumps over the lazy dog"

	if Text(base) != Text(base) {
		t.Error("identical texts produced different fingerprints")
	}
	if d := Distance(Text(base), Text("the quick brown fox leaps over the lazy dog")); d > 10 {
		t.Errorf("similar texts: distance %d, want <= 10", d)
	}
	if d := Distance(Text(base), Text("completely unrelated content about quantum physics and mathematics")); d < 5 {
		t.Errorf("different texts: distance %d, want >= 5", d)
	}
	if Text("") != 0 || Text("   \n\t") != 0 {
		t.Error("empty text should fingerprint to 0")
	}
	if Text("hello") == 0 {
		t.Error("single word should produce a non-zero fingerprint")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b uint64
		want int
	}{
		{0, 0, 0},
		{0, 1, 1},
		{0b1010, 0b0101, 4},
		{^uint64(0), 0, 64},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%b, %b) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
	if !Similar(0b111, 0b100, 2) {
		t.Error("Similar at threshold should be true")
	}
	if Similar(0b111, 0b000, 2) {
		t.Error("Similar beyond threshold should be false")
	}
}

func TestPageText(t *testing.T) {
	page := `<html><head><style>body { color: red }</style><script>var tracking = "abc";</script></head>
		<body><h1>Your cart</h1><p>Two items ready for checkout</p></body></html>`

	if got, want := PageText(page), Text("Your cart Two items ready for checkout"); got != want {
		t.Errorf("PageText = %064b, want fingerprint of the visible text %064b", got, want)
	}

	restyled := `<html><head><style>body { color: blue }</style></head>
		<body><div><h1>Your cart</h1></div><p>Two items ready for checkout</p><script>other()</script></body></html>`
	if PageText(page) != PageText(restyled) {
		t.Error("markup, style or script changes altered the text fingerprint")
	}

	if PageText("<script>only()</script>") != 0 {
		t.Error("a document without visible text should fingerprint to 0")
	}
}

func TestDOM(t *testing.T) {
	page := `<html><body><header><nav><a>Home</a><a>Cart</a></nav></header>
		<main><h1>Title</h1><p>text</p><ul><li>a</li><li>b</li></ul></main>
		<footer><p>copyright</p></footer></body></html>`

	a := DOM(page)
	b := DOM(`<html><body><header><nav><a>Start</a><a>Basket</a></nav></header>
		<main><h1>Other title</h1><p>other text</p><ul><li>x</li><li>y</li></ul></main>
		<footer><p>copyright</p></footer></body></html>`)
	if a != b {
		t.Errorf("same structure, different text: %064b vs %064b", a, b)
	}

	c := DOM(`<table><tr><td><span><img/></span></td></tr><tr><td><input/><select><option></option></select></td></tr></table>`)
	if d := Distance(a, c); d < 5 {
		t.Errorf("different structures: distance %d, want >= 5", d)
	}

	if DOM("") != 0 {
		t.Error("empty document should fingerprint to 0")
	}
	if DOM("<p>one</p>") == 0 {
		t.Error("a short document should still fingerprint from its tags")
	}
}

func gradient(w, h int, rising bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if !rising {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestImage(t *testing.T) {
	if Image(nil) != 0 {
		t.Error("nil image should hash to 0")
	}
	if Image(image.NewRGBA(image.Rect(0, 0, 0, 0))) != 0 {
		t.Error("empty image should hash to 0")
	}

	flat := image.NewGray(image.Rect(0, 0, 40, 40))
	if got := Image(flat); got != 0 {
		t.Errorf("uniform image: %064b, want 0", got)
	}

	if got := Image(gradient(90, 80, true)); got != 0 {
		t.Errorf("brightening gradient: %064b, want 0", got)
	}
	if got := Image(gradient(90, 80, false)); got != ^uint64(0) {
		t.Errorf("darkening gradient: %064b, want all bits", got)
	}
}

func TestImage_ScaleInvariant(t *testing.T) {
	draw := func(w, h int) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.RGBA{255, 255, 255, 255}
				if (x*4/w+y*4/h)%2 == 0 {
					c = color.RGBA{20, 40, 60, 255}
				}
				img.SetRGBA(x, y, c)
			}
		}
		return img
	}

	small, large := Image(draw(180, 160)), Image(draw(360, 320))
	if d := Distance(small, large); d > 4 {
		t.Errorf("same picture at 2x: distance %d, want <= 4", d)
	}
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func TestPalette(t *testing.T) {
	red := color.RGBA{200, 0, 0, 255}
	blue := color.RGBA{0, 0, 200, 255}
	white := color.RGBA{255, 255, 255, 255}

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	fill(img, image.Rect(0, 0, 200, 120), red)
	fill(img, image.Rect(0, 120, 200, 180), blue)
	fill(img, image.Rect(0, 180, 200, 200), white)

	p, err := Palette(img, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) == 0 || p[0].Hex != "C80000" {
		t.Fatalf("palette = %+v, want red first", p)
	}
	if p[0].Share < 0.5 || p[0].Share > 0.7 {
		t.Errorf("red share = %.2f, want about 0.6", p[0].Share)
	}
	if Blank(p) {
		t.Error("three-band image reported blank")
	}
}

func TestPalette_Blank(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 400))
	fill(img, img.Bounds(), color.RGBA{255, 255, 255, 255})
	fill(img, image.Rect(10, 10, 30, 30), color.RGBA{200, 0, 0, 255})
	fill(img, image.Rect(370, 370, 390, 390), color.RGBA{0, 0, 200, 255})

	p, err := Palette(img, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !Blank(p) {
		t.Errorf("near-white page not blank: %+v", p)
	}

	if _, err := Palette(nil, 3); err == nil {
		t.Error("nil image: expected error")
	}
	if Blank(nil) {
		t.Error("empty palette reported blank")
	}
}
