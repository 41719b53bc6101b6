package card

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/leeineian/gemboard/ledger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	Width   = 400
	Rows    = ledger.PageSize
	RowStep = 40
	Height  = RowStep*Rows + 50

	headerSize = 24
	textSize   = 20
	countSize  = 32
	glyphSize  = 32
)

var (
	background = color.RGBA{R: 0x2f, G: 0x31, B: 0x36, A: 0xff}
	foreground = image.NewUniform(color.White)
)

// Glyphs resolves an emoji to a cached image file.
type Glyphs interface {
	Ensure(key ledger.Key) (string, bool)
}

type faces struct {
	header font.Face
	text   font.Face
	count  font.Face
}

var (
	facesOnce sync.Once
	loaded    faces
	facesErr  error
)

func loadFaces() (faces, error) {
	facesOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			facesErr = err
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			facesErr = err
			return
		}

		face := func(f *opentype.Font, size float64) font.Face {
			if facesErr != nil {
				return nil
			}
			fc, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
			if err != nil {
				facesErr = err
			}
			return fc
		}
		loaded = faces{
			header: face(regular, headerSize),
			text:   face(regular, textSize),
			count:  face(bold, countSize),
		}
	})
	return loaded, facesErr
}

// Draw composes the stats card for up to Rows emoji counts.
func Draw(rows []ledger.EmojiCount, name string, glyphs Glyphs) (*image.RGBA, error) {
	fc, err := loadFaces()
	if err != nil {
		return nil, fmt.Errorf("load fonts: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	drawText(img, fc.header, name+"'s Reactions", 10, 30)

	y := 50
	for i, row := range rows {
		if i >= Rows {
			break
		}
		count := strconv.Itoa(row.Count)

		if glyph, ok := loadGlyph(glyphs, row.Key); ok {
			top := y + (countSize-glyphSize)/2
			draw.Draw(img, image.Rect(10, top, 10+glyphSize, top+glyphSize), glyph, glyph.Bounds().Min, draw.Over)
			drawText(img, fc.count, count, 60, y+countSize)
		} else {
			label := row.Key.String()
			drawText(img, fc.text, label, 10, y+textSize)
			drawText(img, fc.count, count, utf8.RuneCountInString(label)*10+30, y+countSize)
		}
		y += RowStep
	}
	return img, nil
}

// Render draws the card and writes it to a fresh PNG in dir. The caller
// owns the returned file.
func Render(rows []ledger.EmojiCount, name string, glyphs Glyphs, dir string) (string, error) {
	img, err := Draw(rows, name, glyphs)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "stats_"+uuid.NewString()+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func loadGlyph(glyphs Glyphs, key ledger.Key) (image.Image, bool) {
	if glyphs == nil {
		return nil, false
	}
	path, ok := glyphs.Ensure(key)
	if !ok {
		return nil, false
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, false
	}
	return img, true
}

func drawText(dst draw.Image, face font.Face, s string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  foreground,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
