package storage

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/url"
	"path"
	"strings"

	// decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ThumbnailSize is the edge length of generated square thumbnails
const ThumbnailSize = 400

// Placeholder colors
const (
	ColorVideo = "667eea"
	ColorImage = "764ba2"
	ColorError = "ff4444"
	ColorNone  = "999999"
)

// Placeholder returns a remote placeholder image URL used when a thumbnail
// cannot be produced.
func Placeholder(hexColor, label string) string {
	return fmt.Sprintf("https://via.placeholder.com/%dx%d/%s/ffffff?text=%s",
		ThumbnailSize, ThumbnailSize, hexColor, url.QueryEscape(label))
}

// Thumbnail scales an encoded image to ThumbnailSize x ThumbnailSize and
// returns it as a base64 JPEG data URI. Transparent areas are flattened
// onto white.
func Thumbnail(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, ThumbnailSize, ThumbnailSize))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ImageExt guesses a file extension from a media URL, defaulting to .jpg
func ImageExt(mediaURL string) string {
	p := mediaURL
	if u, err := url.Parse(mediaURL); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return ".png"
	case ".webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
