// Package minimap persists the base64-encoded minimap PNG a parsed record
// carries to a local directory and/or the object store.
package minimap

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// Statuses mirror the pipeline's task outcomes. A missing target is a
// "not set" outcome, never an error.
const (
	StatusSaved      = "MAP_SAVE_SUCCESS"
	StatusUploaded   = "OSS_MAP_UPLOAD_SUCCESS"
	StatusDirNotSet  = "MAP_DIR_NOT_SET"
	StatusConnNotSet = "OSS_CONN_NOT_SET"
)

// ObjectPutter is the slice of the object store the uploader needs.
type ObjectPutter interface {
	Put(ctx context.Context, key string, body io.Reader, metadata map[string]string, contentType string) error
}

func decode(base64Str string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Str)
	if err != nil {
		return nil, fmt.Errorf("bad base64 payload: %w", err)
	}
	// Parser payloads are already PNG; decode to reject garbage early.
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("payload is not a PNG: %w", err)
	}
	return raw, nil
}

// SaveLocal writes the minimap under mapDir as {basename}.png. basename is
// the game guid.
func SaveLocal(mapDir, basename, base64Str string) (string, error) {
	if mapDir == "" {
		return StatusDirNotSet, nil
	}

	raw, err := decode(base64Str)
	if err != nil {
		return "MAP_SAVE_ERROR", err
	}

	if err := os.MkdirAll(mapDir, 0o755); err != nil {
		return "MAP_SAVE_ERROR", err
	}
	if err := os.WriteFile(filepath.Join(mapDir, basename+".png"), raw, 0o644); err != nil {
		return "MAP_SAVE_ERROR", err
	}
	return StatusSaved, nil
}

// SaveS3 uploads the minimap to the object store under {prefix}{basename}.png.
func SaveS3(ctx context.Context, store ObjectPutter, prefix, basename, base64Str string) (string, error) {
	if store == nil || prefix == "" {
		return StatusConnNotSet, nil
	}

	raw, err := decode(base64Str)
	if err != nil {
		return "OSS_MAP_UPLOAD_ERROR", err
	}

	key := prefix + basename + ".png"
	if err := store.Put(ctx, key, bytes.NewReader(raw), nil, "image/png"); err != nil {
		return "OSS_MAP_UPLOAD_ERROR", err
	}
	return StatusUploaded, nil
}
