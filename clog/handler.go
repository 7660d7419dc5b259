package clog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// clogHandler 在 slog.Handler 外层提供动态级别与 Flush
type clogHandler struct {
	slog.Handler
	levelVar *slog.LevelVar
	writer   io.Writer
}

func newHandler(config *Config, o *options) (*clogHandler, error) {
	w, err := resolveWriter(config.Output, o)
	if err != nil {
		return nil, err
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: replaceAttr(config.SourceRoot),
	}

	var h slog.Handler
	if strings.ToLower(config.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &clogHandler{Handler: h, levelVar: levelVar, writer: w}, nil
}

func resolveWriter(output string, o *options) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "buffer":
		if o.buffer == nil {
			return nil, fmt.Errorf("buffer output requires clog.WithBuffer")
		}
		return o.buffer, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func (h *clogHandler) flush() {
	if s, ok := h.writer.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

// replaceAttr 统一级别名称、时间格式，并裁剪调用位置路径
func replaceAttr(sourceRoot string) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(levelName(level))
			}
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
				a.Value = slog.StringValue(fmt.Sprintf("%s:%d", trimSourcePath(src.File, sourceRoot), src.Line))
			}
		}
		return a
	}
}

func levelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level <= slog.LevelInfo:
		return "INFO"
	case level <= slog.LevelWarn:
		return "WARN"
	case level <= slog.LevelError:
		return "ERROR"
	default:
		return "FATAL"
	}
}

func trimSourcePath(file, sourceRoot string) string {
	if sourceRoot == "" {
		return filepath.Base(file)
	}
	if rel, err := filepath.Rel(sourceRoot, file); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	if idx := strings.Index(file, sourceRoot); idx != -1 {
		return file[idx:]
	}
	return file
}
