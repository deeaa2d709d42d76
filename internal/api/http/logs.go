package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClientLogEntry is one log record forwarded by a controlling client.
type ClientLogEntry struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context"`
	Timestamp string                 `json:"timestamp"`
}

// ClientLogBatch is a batch of forwarded client logs.
type ClientLogBatch struct {
	Source  string           `json:"source"`
	Entries []ClientLogEntry `json:"entries"`
}

// StreamLogs ingests structured logs from controlling clients so client
// and daemon activity land in one stream.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req ClientLogBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log batch"})
		return
	}
	if len(req.Entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no log entries provided"})
		return
	}
	if req.Source == "" {
		req.Source = "client"
	}

	for _, entry := range req.Entries {
		h.writeClientLog(req.Source, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
	})
}

func (h *Handlers) writeClientLog(source string, entry ClientLogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+3)
	fields = append(fields,
		zap.String("client_log_id", entry.ID),
		zap.String("source", source),
		zap.String("client_timestamp", entry.Timestamp),
	)

	// JSON decoding yields strings, float64s and bools; anything nested
	// goes through zap.Any.
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		h.log.Error(entry.Message, fields...)
	case "warn":
		h.log.Warn(entry.Message, fields...)
	case "debug":
		h.log.Debug(entry.Message, fields...)
	default:
		h.log.Info(entry.Message, fields...)
	}
}

const (
	// logTailWindow bounds how far back GetLogs reads.
	logTailWindow = 256 * 1024
	logTailLimit  = 1000
)

// GetLogs tails the daemon's log file. Entries come back newest-last as
// raw JSON lines; plain-text lines are wrapped as strings.
func (h *Handlers) GetLogs(c *gin.Context) {
	if h.logFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "file logging is not configured"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > logTailLimit {
		limit = logTailLimit
	}

	lines, err := tailFile(h.logFile, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entries := make([]json.RawMessage, 0, len(lines))
	for _, ln := range lines {
		if json.Valid(ln) {
			entries = append(entries, json.RawMessage(ln))
			continue
		}
		quoted, _ := json.Marshal(string(ln))
		entries = append(entries, json.RawMessage(quoted))
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// tailFile returns up to limit trailing lines, reading at most
// logTailWindow bytes from the end of the file.
func tailFile(path string, limit int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	off := st.Size() - logTailWindow
	if off < 0 {
		off = 0
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if off > 0 {
		// The window almost certainly starts mid-line; drop the fragment.
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		}
	}

	raw := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	lines := make([][]byte, 0, len(raw))
	for _, ln := range raw {
		ln = bytes.TrimSpace(ln)
		if len(ln) > 0 {
			lines = append(lines, ln)
		}
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}
