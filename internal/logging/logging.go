package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cloudterm/console/internal/config"
)

var (
	logFile *os.File
	mu      sync.Mutex
)

func path() string {
	if config.Cfg.LogPath != "" {
		return config.Cfg.LogPath
	}
	return filepath.Join(config.Cfg.DataPath, "console.log")
}

// Init sets up dual logging to stdout and a log file.
// Must be called after config.Load().
func Init() {
	p := path()

	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", p, err)
		return
	}

	logFile = f
	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.Printf("Logging to file: %s", p)
}

// ReadTail returns the last n lines from the log file.
func ReadTail(n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n"), nil
}
