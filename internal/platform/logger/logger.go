package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yungbote/neurobridge-kt/internal/platform/envutil"
)

// Logger is a leveled key/value logger. It also satisfies the Temporal SDK
// log.Logger interface, so workers and clients share the process logger.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	scrub         *scrubber
}

// New builds a logger for the given mode ("prod"/"production" or anything
// else for development). When LOG_FILE is set, records are also written as
// JSON to a size-rotated file.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(levelFromEnv())

	var opts []zap.Option
	if path := envutil.String("LOG_FILE", ""); path != "" {
		opts = append(opts, teeToFile(path, cfg.Level))
	}

	zapLogger, err := cfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar(), scrub: scrubberFromEnv()}, nil
}

func teeToFile(path string, level zap.AtomicLevel) zap.Option {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    envutil.Int("LOG_FILE_MAX_MB", 50),
		MaxBackups: envutil.Int("LOG_FILE_MAX_BACKUPS", 5),
		MaxAge:     envutil.Int("LOG_FILE_MAX_AGE_DAYS", 14),
		Compress:   true,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level)
	return zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func levelFromEnv() zapcore.Level {
	lvl := zapcore.DebugLevel
	if raw := envutil.String("LOG_LEVEL", ""); raw != "" {
		if err := lvl.Set(raw); err != nil {
			return zapcore.DebugLevel
		}
	}
	return lvl
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.scrub.apply(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.scrub.apply(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.scrub.apply(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.scrub.apply(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, l.scrub.apply(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.scrub.apply(keysAndValues)...), scrub: l.scrub}
}

// scrubber rewrites sensitive values before they reach zap. A nil scrubber
// passes everything through.
type scrubber struct {
	salt string
}

// Substrings of lowercased keys whose values are dropped.
var redactKeys = []string{"authorization", "token", "secret", "password", "dsn", "api_key"}

// Substrings of lowercased keys whose values are replaced by a salted hash,
// so one learner's lines can still be correlated.
var hashKeys = []string{"learner_id", "user_id", "student_id"}

func scrubberFromEnv() *scrubber {
	if !envutil.Bool("LOG_REDACTION_ENABLED", true) {
		return nil
	}
	return &scrubber{salt: envutil.String("LOG_HASH_SALT", "")}
}

func (s *scrubber) apply(kv []interface{}) []interface{} {
	if s == nil || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := strings.ToLower(strings.TrimSpace(fmt.Sprint(out[i])))
		switch {
		case containsAny(key, redactKeys):
			out[i+1] = "[REDACTED]"
		case containsAny(key, hashKeys):
			out[i+1] = s.hash(out[i+1])
		default:
			if str, ok := out[i+1].(string); ok && looksLikeJWT(str) {
				out[i+1] = "[REDACTED]"
			}
		}
	}
	return out
}

func (s *scrubber) hash(v interface{}) string {
	raw := fmt.Sprint(v)
	if v == nil || raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func containsAny(key string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(key, sub) {
			return true
		}
	}
	return false
}

func looksLikeJWT(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
