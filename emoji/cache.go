package emoji

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/google/uuid"
	"github.com/leeineian/gemboard/ledger"
	"github.com/leeineian/gemboard/sys"
	"github.com/nfnt/resize"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	Size = 32

	DefaultCDNBase     = "https://cdn.discordapp.com/emojis/"
	DefaultTwemojiBase = "https://raw.githubusercontent.com/jdecked/twemoji/main/assets/72x72/"

	maxDownloadBytes = 4 << 20
)

// Cache stores normalized emoji images as <Dir>/<id>.png.
type Cache struct {
	Dir         string
	Client      *http.Client
	Limiter     *rate.Limiter
	Retries     int
	Backoff     time.Duration
	CDNBase     string
	TwemojiBase string

	group singleflight.Group
}

// NewCache returns a cache rooted at dir using the shared HTTP client.
func NewCache(dir string) *Cache {
	return &Cache{
		Dir:         dir,
		Client:      sys.HttpClient,
		Limiter:     rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		Retries:     2,
		Backoff:     time.Second,
		CDNBase:     DefaultCDNBase,
		TwemojiBase: DefaultTwemojiBase,
	}
}

// Path is where key's image lives once cached.
func (c *Cache) Path(key ledger.Key) string {
	return filepath.Join(c.Dir, key.AssetID()+".png")
}

// URL is the remote source for key.
func (c *Cache) URL(key ledger.Key) string {
	if key.IsCustom() {
		return c.CDNBase + key.AssetID() + ".png"
	}
	return c.TwemojiBase + key.AssetID() + ".png"
}

// Ensure returns the cached image path for key, downloading it on a miss.
// ok is false when the image could not be obtained.
func (c *Cache) Ensure(key ledger.Key) (string, bool) {
	if key.IsZero() || key.AssetID() == "" {
		return "", false
	}
	path := c.Path(key)
	if _, err := os.Stat(path); err == nil {
		return path, true
	}

	v, _, _ := c.group.Do(key.AssetID(), func() (any, error) {
		if _, err := os.Stat(path); err == nil {
			return true, nil
		}
		return c.fetch(key, path), nil
	})
	if ok, _ := v.(bool); ok {
		return path, true
	}
	return "", false
}

func (c *Cache) fetch(key ledger.Key, path string) bool {
	url := c.URL(key)
	attempts := c.Retries + 1
	sys.LogEmoji(sys.MsgEmojiDownloading, key, url)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			sys.LogEmoji(sys.MsgEmojiRetry, key, attempt-1, c.Retries)
			time.Sleep(c.Backoff)
		}

		data, err := c.download(url)
		var status statusError
		if errors.As(err, &status) {
			sys.LogEmoji(sys.MsgEmojiStatusFail, key, int(status))
			continue
		}
		if err != nil {
			sys.LogEmoji(sys.MsgEmojiFetchFail, key, attempt, err)
			continue
		}

		img, err := Normalize(bytes.NewReader(data))
		if err != nil {
			sys.LogEmoji(sys.MsgEmojiNormalFail, key, err)
			return false
		}
		if err := c.store(path, img); err != nil {
			sys.LogEmoji(sys.MsgEmojiNormalFail, key, err)
			return false
		}
		sys.LogEmoji(sys.MsgEmojiCached, key)
		return true
	}

	sys.LogEmoji(sys.MsgEmojiGaveUp, key, attempts)
	return false
}

func (c *Cache) download(url string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(context.Background()); err != nil {
			return nil, err
		}
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

type statusError int

func (e statusError) Error() string { return fmt.Sprintf("status %d", int(e)) }

func (c *Cache) store(path string, img image.Image) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return err
	}

	tmp := filepath.Join(c.Dir, "."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Normalize scales an image to fit Size×Size, keeping its aspect ratio, and
// centres it on a transparent square.
func Normalize(r io.Reader) (image.Image, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}

	w, h := fitSize(src.Bounds().Dx(), src.Bounds().Dy())
	scaled := resize.Resize(uint(w), uint(h), src, resize.Lanczos3)
	b := scaled.Bounds()

	dst := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	offset := image.Pt((Size-b.Dx())/2, (Size-b.Dy())/2)
	draw.Draw(dst, b.Sub(b.Min).Add(offset), scaled, b.Min, draw.Over)
	return dst, nil
}

// fitSize scales w×h up or down so the longer side is Size.
func fitSize(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return Size, Size
	}
	if w >= h {
		return Size, max(1, (h*Size+w/2)/w)
	}
	return max(1, (w*Size+h/2)/h), Size
}
