package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

var errNoImage = errors.New("no decodable image found")

var previewExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// WritePreview fits the first decodable image under imagesDir (lexical
// order) into boxW x boxH and saves it to dstPath. It never upscales.
func WritePreview(imagesDir, dstPath string, boxW, boxH int) error {
	if boxH <= 0 {
		boxH = boxW
	}

	var candidates []string
	err := filepath.WalkDir(imagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && previewExts[strings.ToLower(filepath.Ext(path))] {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan images: %w", err)
	}
	sort.Strings(candidates)

	for _, candidate := range candidates {
		src, err := imaging.Open(candidate, imaging.AutoOrientation(true))
		if err != nil {
			continue
		}
		thumb := imaging.Fit(src, boxW, boxH, imaging.Lanczos)
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		if err := imaging.Save(thumb, dstPath); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return nil
	}
	return errNoImage
}
