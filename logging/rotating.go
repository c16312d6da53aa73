package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const sweepEvery = 24 * time.Hour

// RotatingFile is an io.Writer that starts a new file every ISO week and
// whenever the current file would grow past maxSize. Files older than the
// retention period are removed by a background sweeper.
//
// Names look like "<prefix>-2026-W42.log", then "<prefix>-2026-W42.1.log" and
// so on once the size limit is hit within a week.
type RotatingFile struct {
	dir       string
	prefix    string
	retention time.Duration
	maxSize   int64
	now       func() time.Time

	mu   sync.Mutex
	file *os.File
	week string
	seq  int
	size int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// OpenRotatingFile creates dir if needed and opens the file for the current week.
// maxSize <= 0 disables size rotation.
func OpenRotatingFile(dir, prefix string, retentionWeeks int, maxSize int64) (*RotatingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rf := &RotatingFile{
		dir:       dir,
		prefix:    prefix,
		retention: time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxSize:   maxSize,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	rf.mu.Lock()
	err := rf.openWeek(weekKey(rf.now()))
	rf.mu.Unlock()
	if err != nil {
		return nil, err
	}

	go rf.sweepLoop()
	return rf, nil
}

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (rf *RotatingFile) fileName(week string, seq int) string {
	if seq == 0 {
		return fmt.Sprintf("%s-%s.log", rf.prefix, week)
	}
	return fmt.Sprintf("%s-%s.%d.log", rf.prefix, week, seq)
}

// latestSeq returns the highest sequence number already on disk for week.
func (rf *RotatingFile) latestSeq(week string) int {
	matches, _ := filepath.Glob(filepath.Join(rf.dir, fmt.Sprintf("%s-%s.*.log", rf.prefix, week)))
	latest := 0
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".log")
		n, err := strconv.Atoi(base[strings.LastIndexByte(base, '.')+1:])
		if err == nil && n > latest {
			latest = n
		}
	}
	return latest
}

// openWeek resumes the newest file of week, or starts the next one when it is full.
// Caller holds mu.
func (rf *RotatingFile) openWeek(week string) error {
	seq := rf.latestSeq(week)
	if info, err := os.Stat(filepath.Join(rf.dir, rf.fileName(week, seq))); err == nil &&
		rf.maxSize > 0 && info.Size() >= rf.maxSize {
		seq++
	}
	return rf.openFile(week, seq)
}

// Caller holds mu.
func (rf *RotatingFile) openFile(week string, seq int) error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
		rf.file = nil
	}

	path := filepath.Join(rf.dir, rf.fileName(week, seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file %s: %w", path, err)
	}

	rf.file, rf.week, rf.seq, rf.size = f, week, seq, info.Size()
	return nil
}

// Write appends p to the current file, rotating first when the week changed
// or the write would overflow the size limit. A single write is never split.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	week := weekKey(rf.now())
	switch {
	case week != rf.week:
		if err := rf.openWeek(week); err != nil {
			return 0, err
		}
	case rf.maxSize > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.maxSize:
		if err := rf.openFile(week, rf.seq+1); err != nil {
			return 0, err
		}
	}

	if rf.file == nil {
		return 0, errors.New("no log file available")
	}
	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// CurrentPath returns the path of the file being written.
func (rf *RotatingFile) CurrentPath() string {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return filepath.Join(rf.dir, rf.fileName(rf.week, rf.seq))
}

// Sweep removes this logger's files last modified before the retention cutoff
// and returns how many were deleted. The file being written is never removed.
func (rf *RotatingFile) Sweep() (int, error) {
	entries, err := os.ReadDir(rf.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	current := filepath.Base(rf.CurrentPath())
	cutoff := rf.now().Add(-rf.retention)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == current || !strings.HasPrefix(name, rf.prefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(rf.dir, name)) == nil {
			removed++
		}
	}
	return removed, nil
}

func (rf *RotatingFile) sweepLoop() {
	defer close(rf.done)
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-rf.stop:
			return
		case <-ticker.C:
			// stderr, the logger may be writing into this file
			if n, err := rf.Sweep(); err != nil {
				fmt.Fprintf(os.Stderr, "log sweep failed: %v\n", err)
			} else if n > 0 {
				fmt.Fprintf(os.Stderr, "removed %d expired log files\n", n)
			}
		}
	}
}

// Close stops the sweeper and closes the current file. It is safe to call twice.
func (rf *RotatingFile) Close() error {
	var err error
	rf.closeOnce.Do(func() {
		close(rf.stop)
		<-rf.done

		rf.mu.Lock()
		defer rf.mu.Unlock()
		if rf.file != nil {
			err = rf.file.Close()
			rf.file = nil
		}
	})
	return err
}
