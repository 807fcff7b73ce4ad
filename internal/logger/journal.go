package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal is the append-only trading log. Every admission decision, fill,
// close and breaker transition lands here so a session can be audited after
// the fact.
type Journal struct {
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
}

// Level tags a journal entry.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARN"
	LevelError   Level = "ERROR"
	LevelTrade   Level = "TRADE"
	LevelRisk    Level = "RISK"
	LevelBreaker Level = "BREAKER"
)

// NewJournal opens (or creates) the day's journal file under dir.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := fmt.Sprintf("engine_%s.log", time.Now().Format("2006-01-02"))
	logPath := filepath.Join(dir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	j := &Journal{
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  dir,
	}
	j.writeSessionHeader()
	return j, nil
}

// NewDiscard returns a journal that writes nowhere, for tests.
func NewDiscard() *Journal {
	return &Journal{logger: log.New(io.Discard, "", 0)}
}

func (j *Journal) writeSessionHeader() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.logger.Printf("================================================================================")
	j.logger.Printf("TRADING SESSION STARTED %s", time.Now().Format("2006-01-02 15:04:05"))
	j.logger.Printf("================================================================================")
}

// Log writes one entry with the given level.
func (j *Journal) Log(level Level, format string, args ...interface{}) {
	j.mu.Lock()
	defer j.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	j.logger.Printf("[%s] [%s] %s", timestamp, level, message)
}

// Info logs an informational message.
func (j *Journal) Info(format string, args ...interface{}) {
	j.Log(LevelInfo, format, args...)
}

// Warning logs a warning.
func (j *Journal) Warning(format string, args ...interface{}) {
	j.Log(LevelWarning, format, args...)
}

// Error logs an error.
func (j *Journal) Error(format string, args ...interface{}) {
	j.Log(LevelError, format, args...)
}

// Trade logs a position entry or exit.
func (j *Journal) Trade(format string, args ...interface{}) {
	j.Log(LevelTrade, format, args...)
}

// Risk logs an admission decision.
func (j *Journal) Risk(format string, args ...interface{}) {
	j.Log(LevelRisk, format, args...)
}

// Breaker logs a circuit-breaker transition.
func (j *Journal) Breaker(format string, args ...interface{}) {
	j.Log(LevelBreaker, format, args...)
}

// Close writes the session footer and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.logFile == nil {
		return nil
	}
	j.logger.Printf("================================================================================")
	j.logger.Printf("TRADING SESSION ENDED %s", time.Now().Format("2006-01-02 15:04:05"))
	j.logger.Printf("================================================================================")
	return j.logFile.Close()
}
