// Package screen captures the display and encodes it for a vision model.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog"
)

var ErrNoDisplay = errors.New("no active displays found")

type Options struct {
	Format      string // auto, png, jpeg
	JPEGQuality int
	MaxBytes    int
	Display     int
	SaveDir     string // empty: don't keep captures
}

// Grabber returns the raw pixels of one display.
type Grabber func(display int) (image.Image, error)

type Capturer struct {
	opts    Options
	grab    Grabber
	tracker ChangeTracker
	log     zerolog.Logger
	now     func() time.Time
}

func New(opts Options, logger zerolog.Logger) *Capturer {
	return NewWithGrabber(opts, GrabDisplay, logger)
}

func NewWithGrabber(opts Options, grab Grabber, logger zerolog.Logger) *Capturer {
	if opts.Format == "" {
		opts.Format = FormatAuto
	}
	return &Capturer{
		opts: opts,
		grab: grab,
		log:  logger.With().Str("component", "screen").Logger(),
		now:  time.Now,
	}
}

// GrabDisplay captures display n, falling back to the primary display
// when n is out of range.
func GrabDisplay(n int) (image.Image, error) {
	count := screenshot.NumActiveDisplays()
	if count == 0 {
		return nil, ErrNoDisplay
	}
	if n < 0 || n >= count {
		n = 0
	}
	img, err := screenshot.CaptureRect(screenshot.GetDisplayBounds(n))
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", n, err)
	}
	return img, nil
}

// Capture grabs the configured display and returns the encoded image.
func (c *Capturer) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := c.grab(c.opts.Display)
	if err != nil {
		return nil, err
	}

	if changed, dist := c.tracker.Observe(img); !changed {
		c.log.Info().Int("distance", dist).Msg("screen unchanged since last capture")
	}

	format := ChooseFormat(img, c.opts.Format)
	data, scaled, err := Shrink(img, format, c.opts.JPEGQuality, c.opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	b := scaled.Bounds()
	c.log.Debug().Str("format", format).Int("w", b.Dx()).Int("h", b.Dy()).Int("bytes", len(data)).Msg("capture encoded")

	if c.opts.SaveDir != "" {
		if path, err := c.save(data); err != nil {
			c.log.Warn().Err(err).Msg("could not save capture")
		} else {
			c.log.Debug().Str("path", path).Msg("capture saved")
		}
	}
	return data, nil
}

func (c *Capturer) save(data []byte) (string, error) {
	if err := os.MkdirAll(c.opts.SaveDir, 0755); err != nil {
		return "", err
	}
	name := "capture_" + c.now().Format("20060102_150405.000") + extension(MIMEType(data))
	path := filepath.Join(c.opts.SaveDir, name)
	return path, os.WriteFile(path, data, 0644)
}
