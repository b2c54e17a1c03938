package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
	ansiTime  = "\x1b[38;5;107m"
	ansiName  = "\x1b[38;5;208m"
	ansiID    = "\x1b[38;5;109m"
	ansiNum   = "\x1b[38;5;108m"
	ansiKey   = "\x1b[38;5;245m"
	ansiWarn  = "\x1b[38;5;179m\x1b[48;5;58m"
	ansiError = "\x1b[38;5;167m\x1b[48;5;52m"
)

var bufferPool = buffer.NewPool()

// consoleEncoder writes one compact line per entry:
//
//	13:04:35  WARN  h.client  Frame dropped  action=showToastr correlation_id=rpc-3
//
// INFO and DEBUG carry no level marker. Every field is printed as key=value;
// nothing is dropped.
type consoleEncoder struct {
	*zapcore.MapObjectEncoder
	color bool
}

func newConsoleEncoder(color bool) *consoleEncoder {
	return &consoleEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

// colorEnabled honours the NO_COLOR convention.
func colorEnabled() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return !set
}

func (enc *consoleEncoder) Clone() zapcore.Encoder {
	clone := newConsoleEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := bufferPool.Get()

	enc.paint(line, ansiTime, ent.Time.Format("15:04:05"))

	if level := levelMarker(ent.Level); level != "" {
		line.AppendString("  ")
		style := ansiWarn
		if ent.Level > zapcore.WarnLevel {
			style = ansiError
		}
		enc.paint(line, ansiBold+style, level)
	}

	if ent.LoggerName != "" {
		line.AppendString("  ")
		enc.paint(line, ansiName, abbreviateName(ent.LoggerName))
	}

	line.AppendString("  ")
	line.AppendString(ent.Message)

	// Context fields from With() come first, in stable order
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sep := "  "
	for _, k := range keys {
		enc.appendPair(line, sep, k, enc.Fields[k])
		sep = " "
	}

	for _, f := range fields {
		m := zapcore.NewMapObjectEncoder()
		f.AddTo(m)
		names := make([]string, 0, len(m.Fields))
		for k := range m.Fields {
			// Stack dumps belong in JSON output
			if strings.HasSuffix(k, "Verbose") {
				continue
			}
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			enc.appendPair(line, sep, k, m.Fields[k])
			sep = " "
		}
	}

	line.AppendString("\n")
	return line, nil
}

func (enc *consoleEncoder) appendPair(line *buffer.Buffer, sep, key string, value interface{}) {
	line.AppendString(sep)
	enc.paint(line, ansiKey, key+"=")

	text := fmt.Sprint(value)
	switch key {
	case FieldCorrelationID, FieldClientID, FieldReportID, FieldAction, FieldChannel:
		enc.paint(line, ansiID, text)
	case FieldDurationMS, FieldCount, FieldSize, FieldPending, FieldListeners:
		enc.paint(line, ansiNum, text)
	default:
		line.AppendString(text)
	}
}

func (enc *consoleEncoder) paint(line *buffer.Buffer, style, text string) {
	if !enc.color {
		line.AppendString(text)
		return
	}
	line.AppendString(style)
	line.AppendString(text)
	line.AppendString(ansiReset)
}

func levelMarker(level zapcore.Level) string {
	if level < zapcore.WarnLevel {
		return ""
	}
	return level.CapitalString()
}

// abbreviateName shortens component names: host.client -> h.client
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0][:1] + "." + strings.Join(parts[1:], ".")
	}
	return name
}
