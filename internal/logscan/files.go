package logscan

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

const jsonlSuffix = ".jsonl"

// Locator lists the log files that may hold events at or after since.
type Locator interface {
	Locate(since time.Time) []string
}

// ModTimeLocator walks Roots and keeps files modified at or after since.
// Only directory entries are stat'ed; older files are never opened.
type ModTimeLocator struct {
	Roots  []string
	Suffix string
}

func (l ModTimeLocator) Locate(since time.Time) []string {
	suffix := lo.Ternary(l.Suffix == "", jsonlSuffix, l.Suffix)
	var files []string
	for _, root := range lo.Uniq(lo.Compact(l.Roots)) {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if !info.ModTime().Before(since) {
				files = append(files, path)
			}
			return nil
		})
	}
	slices.Sort(files)
	return slices.Compact(files)
}

// DatePartitionLocator reads Root/YYYY/MM/DD directories for each calendar
// day from since through now.
type DatePartitionLocator struct {
	Root     string
	Suffix   string
	Location *time.Location
	Now      func() time.Time
}

func (l DatePartitionLocator) Locate(since time.Time) []string {
	if l.Root == "" {
		return nil
	}
	suffix := lo.Ternary(l.Suffix == "", jsonlSuffix, l.Suffix)
	loc := lo.Ternary(l.Location == nil, time.Local, l.Location)
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}

	last := startOfDay(now.In(loc))
	var files []string
	for day := startOfDay(since.In(loc)); !day.After(last); day = day.AddDate(0, 0, 1) {
		dir := filepath.Join(l.Root, day.Format("2006"), day.Format("01"), day.Format("02"))
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	return files
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func floorToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
