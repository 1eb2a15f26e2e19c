package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Options controls where a Logger writes. Terminal receives the colored
// line, JSON receives one JSON document per entry. Either may be nil.
type Options struct {
	Terminal io.Writer
	JSON     io.Writer
	MinLevel LogLevel
	NoColor  bool
}

type Logger struct {
	mu       sync.Mutex
	terminal io.Writer
	json     io.Writer
	logFile  *os.File
	minLevel LogLevel
	noColor  bool
}

// NewLogger writes colored lines to stdout and JSON lines to
// logs/<service>-<date>.log.
func NewLogger(service string) *Logger {
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Fatal("Failed to create logs directory:", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	logFileName := fmt.Sprintf("logs/%s-%s.log", service, timestamp)

	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to create log file:", err)
	}

	l := New(Options{Terminal: os.Stdout, JSON: logFile})
	l.logFile = logFile

	l.Info("LOGGER", "Logging system initialized")
	l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))

	return l
}

func New(opts Options) *Logger {
	return &Logger{
		terminal: opts.Terminal,
		json:     opts.JSON,
		minLevel: opts.MinLevel,
		noColor:  opts.NoColor,
	}
}

// Discard returns a logger that drops everything. Used by tests and tools.
func Discard() *Logger {
	return New(Options{MinLevel: FATAL + 1})
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     l.levelToString(level),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.terminal != nil {
		fmt.Fprint(l.terminal, l.formatTerminalOutput(entry))
	}
	if l.json != nil {
		fmt.Fprintln(l.json, l.formatJSONOutput(entry))
	}
}

func (l *Logger) formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]

	var levelColor, categoryColor *color.Color

	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	case "ERROR":
		levelColor = color.New(color.FgRed)
		categoryColor = color.New(color.FgRed, color.Bold)
	case "FATAL":
		levelColor = color.New(color.FgRed, color.Bold)
		categoryColor = color.New(color.FgRed, color.Bold)
	default:
		levelColor = color.New(color.FgWhite)
		categoryColor = color.New(color.FgWhite, color.Bold)
	}

	timeColor := color.New(color.FgBlue)
	fileColor := color.New(color.FgMagenta)
	if l.noColor {
		for _, c := range []*color.Color{levelColor, categoryColor, timeColor, fileColor} {
			c.DisableColor()
		}
	}

	timeStr := timeColor.Sprintf("%s", timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)

	if entry.File != "" && entry.Line > 0 {
		fileInfo := fileColor.Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}

	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func (l *Logger) formatJSONOutput(entry LogEntry) string {
	jsonBytes, _ := json.Marshal(entry)
	return string(jsonBytes)
}

func (l *Logger) levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

func (l *Logger) LogOrder(action, orderID, message string) {
	l.Info("ORDER", fmt.Sprintf("[%s] %s - %s", action, orderID, message))
}

func (l *Logger) LogInventory(action, ticketTypeID, message string) {
	l.Info("INVENTORY", fmt.Sprintf("[%s] %s - %s", action, ticketTypeID, message))
}

func (l *Logger) LogPricing(ticketTypeID, message string) {
	l.Debug("PRICING", fmt.Sprintf("%s - %s", ticketTypeID, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
