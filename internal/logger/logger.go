// Package logger is a flat, dependency-free line logger, in the same spirit
// as every other RTMP server in the reference corpus: timestamp-prefixed
// text on stdout, gated by environment variables rather than a leveled
// logging library.
package logger

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var mu sync.Mutex

func Line(line string) {
	tm := time.Now()
	mu.Lock()
	defer mu.Unlock()
	fmt.Printf("[%s] %s\n", tm.Format("2006-01-02 15:04:05"), line)
}

func Warning(line string) {
	Line("[WARNING] " + line)
}

func Info(line string) {
	Line("[INFO] " + line)
}

func Error(err error) {
	Line("[ERROR] " + err.Error())
}

var requestsEnabled = os.Getenv("LOG_REQUESTS") != "NO"

// Request logs a per-session line unless LOG_REQUESTS=NO.
func Request(sessionID uint64, ip string, line string) {
	if requestsEnabled {
		Line("[REQUEST] #" + strconv.FormatUint(sessionID, 10) + " (" + ip + ") " + line)
	}
}

var debugEnabled = os.Getenv("LOG_DEBUG") == "YES"

// Debug logs only when LOG_DEBUG=YES.
func Debug(line string) {
	if debugEnabled {
		Line("[DEBUG] " + line)
	}
}

func DebugSession(sessionID uint64, ip string, line string) {
	if debugEnabled {
		Line("[DEBUG] #" + strconv.FormatUint(sessionID, 10) + " (" + ip + ") " + line)
	}
}
