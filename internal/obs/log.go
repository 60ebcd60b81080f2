// Package obs bundles the service's observability surface: the Prometheus
// metrics for HTTP traffic and the request lifecycle, and the JSON line
// logger shared by the access layer and the audit trail.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Output goes to stdout with
// no prefix; every caller emits complete JSON objects.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest serializes one request-scoped entry as a single JSON line.
// Entries that fail to marshal are replaced with a static error line so the
// log stream stays parseable.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log entry marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
