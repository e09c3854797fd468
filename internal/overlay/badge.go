package overlay

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/skip2/go-qrcode"
)

// BadgeMargin is the distance between the badge and the frame edges.
const BadgeMargin = 20

// Badge encodes locator as a QR code image of size x size pixels.
func Badge(locator string, size int) (image.Image, error) {
	if locator == "" {
		return nil, fmt.Errorf("badge: empty locator")
	}
	if size <= 0 {
		return nil, fmt.Errorf("badge: size must be positive, got %d", size)
	}
	q, err := qrcode.New(locator, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("badge: %w", err)
	}
	q.DisableBorder = true
	return q.Image(size), nil
}

// DrawBadge places badge in the bottom-right corner of dst.
func DrawBadge(dst *image.RGBA, badge image.Image) {
	if badge == nil {
		return
	}
	b := dst.Bounds()
	size := badge.Bounds().Size()
	at := image.Pt(b.Max.X-BadgeMargin-size.X, b.Max.Y-BadgeMargin-size.Y)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(size)}, badge, badge.Bounds().Min, draw.Src)
}
