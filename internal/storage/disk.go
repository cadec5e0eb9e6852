package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskPaths names the on-disk artifacts of a media library. Empty paths are skipped.
type DiskPaths struct {
	Database   string
	Vectors    string
	NameIndex  string
	Thumbnails string
}

// DiskUsage is the size in bytes of each artifact of a media library.
type DiskUsage struct {
	Database   int64 `json:"database"`
	Vectors    int64 `json:"vectors"`
	NameIndex  int64 `json:"name_index"`
	Thumbnails int64 `json:"thumbnails"`
	Total      int64 `json:"total"`
}

// MeasureDiskUsage sizes every artifact in p. The database size includes the SQLite
// -wal and -shm side files. Missing paths count as zero.
func MeasureDiskUsage(p DiskPaths) (DiskUsage, error) {
	var u DiskUsage
	var err error
	if p.Database != "" {
		for _, f := range []string{p.Database, p.Database + "-wal", p.Database + "-shm"} {
			n, err := pathSize(f)
			if err != nil {
				return DiskUsage{}, err
			}
			u.Database += n
		}
	}
	if u.Vectors, err = pathSize(p.Vectors); err != nil {
		return DiskUsage{}, err
	}
	if u.NameIndex, err = pathSize(p.NameIndex); err != nil {
		return DiskUsage{}, err
	}
	if u.Thumbnails, err = pathSize(p.Thumbnails); err != nil {
		return DiskUsage{}, err
	}
	u.Total = u.Database + u.Vectors + u.NameIndex + u.Thumbnails
	return u, nil
}

// pathSize returns the size of a file, or the recursive size of a directory.
func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
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
		if errors.Is(err, fs.ErrNotExist) {
			// Thumbnails can be removed by a concurrent refresh.
			return nil
		}
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
