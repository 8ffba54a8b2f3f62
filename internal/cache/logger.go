package cache

import (
	"encoding/json"
	"log"
	"time"
)

// Logger receives structured diagnostics from the answer caches, mainly
// persistence failures from FilePersistentCache. Implementations must be
// safe for concurrent use; cache writes happen on the answering path.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// StdLogger writes cache diagnostics as single-line JSON through the
// standard log package, keeping the output greppable next to the
// orchestrator's plain log lines.
type StdLogger struct{}

func (l *StdLogger) Info(msg string, fields map[string]interface{}) {
	l.write("info", msg, fields)
}

func (l *StdLogger) Error(msg string, fields map[string]interface{}) {
	l.write("error", msg, fields)
}

func (l *StdLogger) write(level, msg string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{}, 3)
	}
	fields["level"] = level
	fields["msg"] = msg
	fields["ts"] = time.Now().Format(time.RFC3339)
	b, _ := json.Marshal(fields)
	log.Println(string(b))
}
