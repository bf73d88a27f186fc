// Package util - reads source photographs and writes the final canvas.
package util

import (
	"bytes"
	"image"
	_ "image/gif" // register gif decoding
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp" // register bmp decoding

	"github.com/nvr-ai/go-glitch/images"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
}

// Decode decodes the file contents with whichever registered format matches.
//
// Returns:
//   - image.Image: The decoded image.
//   - string: The format name.
//   - error: An error if no registered format can decode the data.
func (f ImageFile) Decode() (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to decode %s", f.Path)
	}
	return img, format, nil
}

// IsImagePath reports whether the extension is one of the decodable formats.
func IsImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// LoadImages reads the given files in order.
//
// Arguments:
//   - paths: The image paths.
//
// Returns:
//   - []ImageFile: One entry per path, in the same order.
//   - error: An error naming the first unreadable file.
func LoadImages(paths []string) ([]ImageFile, error) {
	files := make([]ImageFile, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		files = append(files, ImageFile{Path: path, Data: data})
	}
	return files, nil
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile sorted by path.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImagePath(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	return LoadImages(paths)
}

// SaveImage writes img to path, creating parent directories. The encoder is
// chosen from the extension: png, jpg/jpeg (quality 95) or webp (lossless).
func SaveImage(path string, img image.Image) error {
	format, err := images.FormatFromPath(path)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	if err := Encode(f, img, format); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format images.ImageFormat) error {
	switch format {
	case images.FormatPNG:
		return png.Encode(w, img)
	case images.FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case images.FormatWebP:
		return webp.Encode(w, img, &webp.Options{Lossless: true})
	default:
		return errors.Errorf("unsupported image format %q", format)
	}
}
