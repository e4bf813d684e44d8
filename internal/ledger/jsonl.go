package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLLedger appends one JSON object per line to an audit file. Each event
// is flushed immediately so a crash loses at most the event being written.
type JSONLLedger struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

func NewJSONLLedger(path string) (*JSONLLedger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLLedger{f: f, enc: json.NewEncoder(f), path: path}, nil
}

func (l *JSONLLedger) Record(evt Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(evt); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (l *JSONLLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadJSONL loads every event from an audit file in write order. Blank lines
// are skipped; a malformed line aborts the read so truncation is not silently
// papered over.
func ReadJSONL(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return events, nil
}
