// Package quota reports local storage consumption so the upload queue can
// refuse admissions that would exceed the configured budget.
package quota

import (
	"context"
	"io/fs"
	"path/filepath"
)

// Reporter answers how much of the local storage budget is consumed.
type Reporter interface {
	// Usage returns bytes used and the total budget. A total of zero means
	// the budget is unlimited.
	Usage(ctx context.Context) (used, total uint64, err error)
}

// DirReporter measures usage by walking a directory tree and summing regular
// file sizes. Suitable for budgets over the engine data directory.
type DirReporter struct {
	Dir   string
	Total uint64
}

func (r *DirReporter) Usage(ctx context.Context) (uint64, uint64, error) {
	var used uint64
	err := filepath.WalkDir(r.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			used += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return used, r.Total, nil
}

// StaticReporter returns fixed numbers. Used in tests and when usage is
// tracked externally.
type StaticReporter struct {
	Used  uint64
	Total uint64
}

func (r *StaticReporter) Usage(ctx context.Context) (uint64, uint64, error) {
	return r.Used, r.Total, nil
}
