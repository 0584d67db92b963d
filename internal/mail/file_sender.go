package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileSender дописывает каждое сообщение в файл
type FileSender struct {
	mu       sync.Mutex
	filePath string
	now      func() time.Time
}

func NewFileSender(filePath string) (*FileSender, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log file '%s': %w", dir, err)
	}
	return &FileSender{filePath: filePath, now: time.Now}, nil
}

func (s *FileSender) Send(_ context.Context, to []string, subject string, rawMessage []byte) error {
	entry := fmt.Sprintf("--- Email logged at %s (To: %v, Subject: %s) ---\n", s.now().Format(time.RFC3339Nano), to, subject)
	buf := append([]byte(entry), rawMessage...)
	buf = append(buf, "\n--- End ---\n\n"...)

	// параллельные рассылки пишут в один файл
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(buf); err != nil {
		return fmt.Errorf("failed to write email to log file: %w", err)
	}
	return nil
}
