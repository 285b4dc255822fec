package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// sidecarSuffixes are files SQLite keeps next to the database in WAL mode.
var sidecarSuffixes = []string{"-wal", "-shm"}

// DiskUsageBytes sums the size of the store, keyword index and snapshot
// paths. Directories are walked; a file path also counts its WAL sidecars.
// Empty, missing and repeated paths add nothing.
func DiskUsageBytes(paths ...string) (int64, error) {
	seen := make(map[string]struct{}, len(paths))
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		n, err := pathSize(p)
		if err != nil {
			return 0, err
		}
		total += n
		for _, suffix := range sidecarSuffixes {
			if info, err := os.Stat(p + suffix); err == nil && info.Mode().IsRegular() {
				total += info.Size()
			}
		}
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
