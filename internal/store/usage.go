package store

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// Usage is the filesystem usage of the volume holding the store.
type Usage struct {
	Path        string
	TotalGB     float64
	FreeGB      float64
	UsedPercent float64
}

// DiskUsage reports usage of the filesystem holding path.
func DiskUsage(path string) (Usage, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return Usage{}, fmt.Errorf("store: disk usage of %s: %w", path, err)
	}
	return Usage{
		Path:        path,
		TotalGB:     float64(u.Total) / 1e9,
		FreeGB:      float64(u.Free) / 1e9,
		UsedPercent: u.UsedPercent,
	}, nil
}

// LogDiskUsage logs DiskUsage(path) at info level.
func LogDiskUsage(path string, log logrus.FieldLogger) error {
	u, err := DiskUsage(path)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"path":         u.Path,
		"total_gb":     fmt.Sprintf("%.2f", u.TotalGB),
		"free_gb":      fmt.Sprintf("%.2f", u.FreeGB),
		"used_percent": fmt.Sprintf("%.1f", u.UsedPercent),
	}).Info("Disk usage for channel store")
	return nil
}
