package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNoLogFile is returned when logging.dir/bot_file are not configured.
var ErrNoLogFile = errors.New("logger: bot log file is not configured")

// LogFile gives read and truncate access to one log file on disk.
// Pending records are flushed before every operation.
type LogFile struct {
	Path string
	// MaxBytes bounds Read output to the tail of the file; 0 reads everything.
	MaxBytes int64
}

// BotLogFile returns the file configured via logging.dir and logging.bot_file.
func BotLogFile(maxBytes int64) LogFile {
	return LogFile{Path: botLogPath, MaxBytes: maxBytes}
}

// Read returns the file contents, or its last MaxBytes bytes.
func (f LogFile) Read() ([]byte, error) {
	if f.Path == "" {
		return nil, ErrNoLogFile
	}
	flush()
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if f.MaxBytes > 0 {
		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat log file: %w", err)
		}
		if off := info.Size() - f.MaxBytes; off > 0 {
			if _, err := file.Seek(off, io.SeekStart); err != nil {
				return nil, fmt.Errorf("seek log file: %w", err)
			}
		}
	}
	return io.ReadAll(file)
}

// Truncate empties the file. Writers opened with O_APPEND keep writing from the new end.
func (f LogFile) Truncate() error {
	if f.Path == "" {
		return ErrNoLogFile
	}
	flush()
	if err := os.Truncate(f.Path, 0); err != nil {
		return fmt.Errorf("truncate log file: %w", err)
	}
	return nil
}

func flush() {
	if logWriter != nil {
		_ = logWriter.Flush()
	}
}
