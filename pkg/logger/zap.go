package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(ctx context.Context, arg ...any)
	Debugf(ctx context.Context, template string, arg ...any)
	Info(ctx context.Context, arg ...any)
	Infof(ctx context.Context, template string, arg ...any)
	Warn(ctx context.Context, arg ...any)
	Warnf(ctx context.Context, template string, arg ...any)
	Error(ctx context.Context, arg ...any)
	Errorf(ctx context.Context, template string, arg ...any)
	Fatal(ctx context.Context, arg ...any)
	Fatalf(ctx context.Context, template string, arg ...any)

	// With returns a context whose logger carries the given key/value
	// pairs on every line logged through it.
	With(ctx context.Context, keysAndValues ...any) context.Context
}

type ZapConfig struct {
	Level    string
	Mode     string
	Encoding string
}

type zapLogger struct {
	sugarLogger *zap.SugaredLogger
	cfg         *ZapConfig
}

func InitializeTestZapLogger() Logger {
	logger := zapLogger{
		cfg: &ZapConfig{
			Level:    "debug",
			Mode:     "testing",
			Encoding: "console",
		},
	}
	logger.init()
	return &logger
}

func InitializeZapLogger(cfg ZapConfig) Logger {
	logger := zapLogger{
		cfg: &cfg,
	}
	logger.init()
	return &logger
}

// NewNop discards everything. Used by benchmarks and noisy tests.
func NewNop() Logger {
	return &zapLogger{
		sugarLogger: zap.NewNop().Sugar(),
		cfg:         &ZapConfig{},
	}
}

var logLevelMap = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"fatal":  zapcore.FatalLevel,
	"panic":  zapcore.PanicLevel,
	"dpanic": zapcore.DPanicLevel,
}

func (l *zapLogger) getLoggerLevel() zapcore.Level {
	level, exist := logLevelMap[l.cfg.Level]
	if !exist {
		return zapcore.DebugLevel
	}
	return level
}

func (l *zapLogger) init() {
	logLevel := l.getLoggerLevel()

	logWriter := zapcore.AddSync(os.Stderr)

	var encoderCfg zapcore.EncoderConfig
	if l.cfg.Mode == "production" {
		encoderCfg = zap.NewProductionEncoderConfig()
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	encoderCfg.LevelKey = "LEVEL"
	encoderCfg.CallerKey = "CALLER"
	encoderCfg.TimeKey = "TIME"
	encoderCfg.NameKey = "NAME"
	encoderCfg.MessageKey = "MESSAGE"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if l.cfg.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, logWriter, zap.NewAtomicLevelAt(logLevel))
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	l.sugarLogger = logger.Sugar()
}

// loggerKey holds the context key used for loggers.
type loggerKey struct{}

func (l *zapLogger) ctx(ctx context.Context) *zap.SugaredLogger {
	if ctx == nil {
		panic("nil context passed to Logger")
	}
	if logger, _ := ctx.Value(loggerKey{}).(*zap.SugaredLogger); logger != nil {
		return logger
	}

	return l.sugarLogger
}

func (l *zapLogger) With(ctx context.Context, keysAndValues ...any) context.Context {
	return context.WithValue(ctx, loggerKey{}, l.ctx(ctx).With(keysAndValues...))
}

func (l *zapLogger) Debug(ctx context.Context, args ...any) {
	l.ctx(ctx).Debug(args...)
}

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Debugf(template, args...)
}

func (l *zapLogger) Info(ctx context.Context, args ...any) {
	l.ctx(ctx).Info(args...)
}

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Infof(template, args...)
}

func (l *zapLogger) Warn(ctx context.Context, args ...any) {
	l.ctx(ctx).Warn(args...)
}

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Warnf(template, args...)
}

func (l *zapLogger) Error(ctx context.Context, args ...any) {
	l.ctx(ctx).Error(args...)
}

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Errorf(template, args...)
}

func (l *zapLogger) Fatal(ctx context.Context, args ...any) {
	l.ctx(ctx).Fatal(args...)
}

func (l *zapLogger) Fatalf(ctx context.Context, template string, args ...any) {
	l.ctx(ctx).Fatalf(template, args...)
}
