package utils

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - параметры логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто = stdout
	Development bool
}

// Logger - корневой логгер приложения
// Компоненты получают *zap.Logger и добавляют свой Component
type Logger struct {
	*zap.Logger
}

// InitLogger создаёт логгер по конфигурации
// Недоступный файл вывода не фатален: пишем в stderr
func InitLogger(cfg LogConfig) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		if cfg.Development {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if cfg.Output != "" && cfg.Output != "stdout" {
		if cfg.Output == "stderr" {
			sink = zapcore.Lock(os.Stderr)
		} else if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			sink = zapcore.AddSync(f)
		} else {
			sink = zapcore.Lock(os.Stderr)
		}
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(parseLevel(cfg.Level)))

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	l := zap.New(core, opts...)
	return &Logger{Logger: l}
}

// SetGlobalLogger делает логгер глобальным для zap.L() и перенаправляет в него стандартный log
// Возвращает функцию восстановления прежнего состояния
func SetGlobalLogger(l *Logger) func() {
	if l == nil || l.Logger == nil {
		return func() {}
	}
	restoreGlobals := zap.ReplaceGlobals(l.Logger)
	restoreStdLog := zap.RedirectStdLog(l.Logger)
	return func() {
		restoreStdLog()
		restoreGlobals()
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ============ Конструкторы полей ============

func Component(v string) zap.Field { return zap.String("component", v) }
func Instrument(v string) zap.Field { return zap.String("instrument", v) }
func AccountID(v string) zap.Field { return zap.String("account_id", v) }
func PeriodStart(v int64) zap.Field { return zap.Int64("period_start", v) }
func RequestID(v string) zap.Field { return zap.String("request_id", v) }

// Latency - длительность в миллисекундах
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }
