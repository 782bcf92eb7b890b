package gateway

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quill-agent/quill/errors"
)

const (
	auditFileName = "audit.jsonl"
	auditFileMode = 0644
	auditDirMode  = 0755
)

// AuditEvent is one gateway dispatch written as a single JSON line.
type AuditEvent struct {
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Elapsed   int64     `json:"elapsed_ms"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// AuditWriter appends events to <stateDir>/audit.jsonl. Appends are
// serialized so concurrent dispatches produce whole lines.
type AuditWriter struct {
	path string
	mu   sync.Mutex
}

func NewAuditWriter(stateDir string) *AuditWriter {
	return &AuditWriter{path: filepath.Join(stateDir, auditFileName)}
}

// Append writes one event as one JSONL line.
func (w *AuditWriter) Append(event AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), auditDirMode); err != nil {
		return errors.Wrapf(err, "create audit dir")
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, auditFileMode)
	if err != nil {
		return errors.Wrapf(err, "open audit file")
	}
	defer file.Close()

	encoded, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal audit event")
	}
	encoded = append(encoded, '\n')

	if _, err := file.Write(encoded); err != nil {
		return errors.Wrapf(err, "append audit event")
	}
	return nil
}

var requestCounter uint32

// newRequestID returns a 12-byte hex ID: unix seconds, five random bytes,
// and a process-local counter. Sortable by creation time, unique enough for
// correlating audit lines with logs.
func newRequestID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&requestCounter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}
