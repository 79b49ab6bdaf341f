package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	Development = "development"
	Production  = "production"
)

// Init настраивает глобальный zerolog: консольный вывод для разработки, JSON для production.
func Init(environment string) {
	if strings.EqualFold(environment, Production) {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
		return
	}
	log.Logger = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.DebugLevel)
}

type BaseLogger struct {
	mu     sync.Mutex
	prefix string
	writer io.Writer
	zl     zerolog.Logger
}

// NewLogger создаёт логгер с префиксом компонента. Если writer == nil, используется глобальный zerolog.
func NewLogger(writer io.Writer, prefix string) *BaseLogger {
	return &BaseLogger{
		writer: writer,
		prefix: prefix,
		zl:     newZerolog(writer),
	}
}

// Discard - логгер для тестов.
func Discard() *BaseLogger {
	return NewLogger(io.Discard, "")
}

func newZerolog(writer io.Writer) zerolog.Logger {
	if writer == nil {
		return log.Logger
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}

func (l *BaseLogger) Log(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl.Info().Msg(l.message(format, v...))
}

func (l *BaseLogger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl.Error().Msg(l.message(format, v...))
}

func (l *BaseLogger) message(format string, v ...interface{}) string {
	if l.prefix == "" {
		return fmt.Sprintf(format, v...)
	}
	return fmt.Sprintf(l.prefix+" "+format, v...)
}

func (l *BaseLogger) WithPrefix(extraPrefix string) *BaseLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := extraPrefix
	if l.prefix != "" {
		prefix = l.prefix + " " + extraPrefix
	}
	return &BaseLogger{
		writer: l.writer,
		prefix: prefix,
		zl:     l.zl,
	}
}

func (l *BaseLogger) SetPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefix = prefix
}

func (l *BaseLogger) SetWriter(writer io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = writer
	l.zl = newZerolog(writer)
}
