package parser

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

var (
	// Logger used by the parser. Callers may replace it or change
	// its level.
	Logger = logrus.New()

	debug_once sync.Once
)

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
}

func Debug(arg interface{}) {
	spew.Dump(arg)
}

type Debugger interface {
	DebugString() string
}

func DebugString(arg interface{}, indent string) string {
	debugger, ok := arg.(Debugger)
	if ok {
		lines := strings.Split(debugger.DebugString(), "\n")
		for idx, line := range lines {
			lines[idx] = indent + line
		}
		return strings.Join(lines, "\n")
	}

	return spew.Sdump(arg)
}

// SetDebug turns on debug logging.
func SetDebug() {
	Logger.SetLevel(logrus.DebugLevel)
}

func debugEnabled() bool {
	debug_once.Do(func() {
		// os.Environ() seems very expensive in Go so we only
		// look once.
		for _, x := range os.Environ() {
			if strings.HasPrefix(x, "NTFS_DEBUG=") {
				SetDebug()
				break
			}
		}
	})

	return Logger.IsLevelEnabled(logrus.DebugLevel)
}

func DebugPrint(fmt_str string, v ...interface{}) {
	if debugEnabled() {
		Logger.Debug(strings.TrimRight(fmt.Sprintf(fmt_str, v...), "\n"))
	}
}

// DebugFields logs a structured debug message.
func DebugFields(msg string, fields logrus.Fields) {
	if debugEnabled() {
		Logger.WithFields(fields).Debug(msg)
	}
}
