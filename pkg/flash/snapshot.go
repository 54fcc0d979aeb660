package flash

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/andri/cardwallet/internal/logger"
)

// snapshotStamp sorts lexically in time order and is safe in file names on
// every platform.
const snapshotStamp = "20060102T150405Z"

const snapshotSuffix = ".snapshot.json"

// SnapshotOptions controls the copy of an image kept before it is replaced.
type SnapshotOptions struct {
	Enabled bool
	// Dir holds snapshots. Empty keeps them next to the image.
	Dir string
	// Keep bounds the snapshots retained per image; zero keeps all of them.
	Keep int
	Now  func() time.Time
}

// Snapshot copies the image at path aside. Snapshots hold PIN hashes and
// device shares, so they are written owner-only whatever the image mode.
// It returns "" when there is no image to copy or snapshots are disabled.
func Snapshot(path string, opts SnapshotOptions) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("flash image path is required")
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("stat flash image %s: %w", path, err)
	case info.IsDir():
		return "", fmt.Errorf("flash image path is a directory: %s", path)
	}

	if !opts.Enabled {
		logger.Warn("replacing flash image without a snapshot", "path", path)
		return "", nil
	}

	dir := filepath.Dir(path)
	if strings.TrimSpace(opts.Dir) != "" {
		if dir, err = expandHome(opts.Dir); err != nil {
			return "", err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create snapshot directory %s: %w", dir, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read flash image %s: %w", path, err)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	base := snapshotBase(path)
	dst := filepath.Join(dir, base+"."+now().UTC().Format(snapshotStamp)+snapshotSuffix)
	if err := writeSnapshot(dst, data); err != nil {
		return "", err
	}
	logger.Info("flash image snapshot written", "path", path, "snapshot", dst)

	if opts.Keep > 0 {
		pruneSnapshots(dir, base, opts.Keep)
	}
	return dst, nil
}

// ReplaceImage snapshots the image at path, then writes img in its place.
// The snapshot path is returned even when the write fails.
func ReplaceImage(path string, img Image, opts SnapshotOptions) (string, error) {
	snap, err := Snapshot(path, opts)
	if err != nil {
		return "", err
	}
	return snap, WriteFile(path, img)
}

// Snapshots lists the snapshots of the image at path in dir, oldest first.
func Snapshots(dir, path string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, snapshotBase(path)+".*"+snapshotSuffix))
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

func snapshotBase(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func writeSnapshot(dst string, data []byte) error {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", dst, err)
	}
	_, err = out.Write(data)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("write snapshot %s: %w", dst, err)
	}
	return nil
}

// pruneSnapshots removes all but the newest keep snapshots. Failures are
// logged; the snapshot just taken is never at risk.
func pruneSnapshots(dir, base string, keep int) {
	names, err := filepath.Glob(filepath.Join(dir, base+".*"+snapshotSuffix))
	if err != nil || len(names) <= keep {
		return
	}
	slices.Sort(names)
	for _, old := range names[:len(names)-keep] {
		if err := os.Remove(old); err != nil {
			logger.Warn("failed to prune flash image snapshot", "snapshot", old, "error", err)
			continue
		}
		logger.Debug("pruned flash image snapshot", "snapshot", old)
	}
}
