package sensor

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chachabrian/parkit-backend/internal/services"
)

const (
	dayLayout       = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"
)

// LogName is the daily log file name for the day of t.
func LogName(t time.Time) string {
	return fmt.Sprintf("parking_log_%s.csv", t.Format(dayLayout))
}

// DailyLog appends accepted changes to one CSV file per day. When the day
// rolls over, and on Close, the finished file is handed to the archiver.
type DailyLog struct {
	dir      string
	archiver services.Archiver

	day    string
	path   string
	file   *os.File
	writer *csv.Writer
}

func NewDailyLog(dir string, archiver services.Archiver) (*DailyLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}
	return &DailyLog{dir: dir, archiver: archiver}, nil
}

// Path returns the file currently written to, if any.
func (l *DailyLog) Path() string {
	return l.path
}

func header(slots int) []string {
	h := []string{"Timestamp", "Available_Slots"}
	for i := 1; i <= slots; i++ {
		h = append(h, "Slot"+strconv.Itoa(i))
	}
	return append(h, "Change_Type")
}

func (l *DailyLog) open(ctx context.Context, at time.Time, slots int) error {
	day := at.Format(dayLayout)
	if l.file != nil && l.day == day {
		return nil
	}
	if l.file != nil {
		if err := l.finish(ctx); err != nil {
			log.Printf("[sensor] failed to archive %s: %v", l.path, err)
		}
	}

	path := filepath.Join(l.dir, LogName(at))
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}

	l.day, l.path, l.file, l.writer = day, path, f, csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := l.writer.Write(header(slots)); err != nil {
			return err
		}
	}
	log.Printf("[sensor] logging to %s", path)
	return nil
}

// Append writes one row for an accepted change.
func (l *DailyLog) Append(ctx context.Context, at time.Time, f Frame, description string) error {
	if err := l.open(ctx, at, len(f.Slots)); err != nil {
		return err
	}

	row := []string{at.Format(timestampLayout), strconv.Itoa(f.Available)}
	for _, s := range f.Slots {
		row = append(row, slotValue(s))
	}
	row = append(row, description)

	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("file writing error: %v", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// finish closes the current file and archives it
func (l *DailyLog) finish(ctx context.Context) error {
	l.writer.Flush()
	err := l.file.Close()
	path := l.path
	l.file, l.writer, l.day, l.path = nil, nil, "", ""
	if err != nil {
		return err
	}
	if l.archiver == nil {
		return nil
	}
	dst, err := l.archiver.Archive(ctx, path)
	if err != nil {
		return err
	}
	log.Printf("[sensor] archived %s to %s", filepath.Base(path), dst)
	return nil
}

// Close flushes and archives the current file.
func (l *DailyLog) Close(ctx context.Context) error {
	if l.file == nil {
		return nil
	}
	return l.finish(ctx)
}
