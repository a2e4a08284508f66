package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	goutils "go.viam.com/utils"
)

// traceFieldKey names the field carrying the debug mode key on context-enabled entries.
const traceFieldKey = "trace"

var errUnpairedKey = errors.New("unpaired log key")

type traceKeyType struct{}

// EnableDebugMode returns a context under which CDebug calls are emitted whatever the logger's
// level, tagged with key. An empty key is replaced by a random one.
func EnableDebugMode(ctx context.Context, key string) context.Context {
	if key == "" {
		key = goutils.RandomAlphaString(6)
	}
	return context.WithValue(ctx, traceKeyType{}, key)
}

// IsDebugMode returns whether ctx came from EnableDebugMode.
func IsDebugMode(ctx context.Context) bool {
	return TraceKey(ctx) != ""
}

// TraceKey returns the key given to EnableDebugMode, or "" when ctx is not in debug mode.
func TraceKey(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(traceKeyType{}).(string)
	return key
}

// appenderSet is shared by a logger and its subloggers.
type appenderSet struct {
	mu        sync.RWMutex
	appenders []Appender
}

func (set *appenderSet) add(appender Appender) {
	set.mu.Lock()
	defer set.mu.Unlock()
	set.appenders = append(set.appenders, appender)
}

func (set *appenderSet) list() []Appender {
	set.mu.RLock()
	defer set.mu.RUnlock()
	return append([]Appender(nil), set.appenders...)
}

func (set *appenderSet) write(entry zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range set.list() {
		if err := appender.Write(entry, fields); err != nil {
			//nolint:errcheck
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (set *appenderSet) sync() error {
	var errs error
	for _, appender := range set.list() {
		errs = multierr.Append(errs, appender.Sync())
	}
	return errs
}

func (set *appenderSet) close() error {
	errs := set.sync()

	set.mu.Lock()
	defer set.mu.Unlock()
	kept := set.appenders[:0]
	for _, appender := range set.appenders {
		closer, ok := appender.(io.Closer)
		if !ok {
			kept = append(kept, appender)
			continue
		}
		errs = multierr.Append(errs, closer.Close())
	}
	set.appenders = kept
	return errs
}

type logger struct {
	name  string
	level AtomicLevel
	utc   bool
	out   *appenderSet
}

func newLogger(name string, level Level, utc bool, appenders ...Appender) *logger {
	return &logger{
		name:  name,
		level: NewAtomicLevelAt(level),
		utc:   utc,
		out:   &appenderSet{appenders: appenders},
	}
}

func (l *logger) Sublogger(subname string) Logger {
	name := subname
	if l.name != "" {
		name = l.name + "." + subname
	}
	return &logger{name: name, level: NewAtomicLevelAt(l.level.Get()), utc: l.utc, out: l.out}
}

func (l *logger) AddAppender(appender Appender) {
	l.out.add(appender)
}

func (l *logger) SetLevel(level Level) {
	l.level.Set(level)
}

func (l *logger) GetLevel() Level {
	return l.level.Get()
}

func (l *logger) Sync() error {
	return l.out.sync()
}

func (l *logger) Close() error {
	return l.out.close()
}

// AsZap returns a zap logger writing to every appender that is also a zapcore.Core.
func (l *logger) AsZap() *zap.SugaredLogger {
	var cores []zapcore.Core
	for _, appender := range l.out.list() {
		if core, ok := appender.(zapcore.Core); ok {
			cores = append(cores, core)
		}
	}

	core := zapcore.NewTee(cores...)
	if leveled, err := zapcore.NewIncreaseLevelCore(core, l.level.Get().AsZap()); err == nil {
		core = leveled
	}
	return zap.New(core, zap.AddCaller()).Sugar().Named(l.name)
}

func (l *logger) enabled(level Level) bool {
	return level >= l.level.Get()
}

// emit must be called directly by the exported method so the caller frame is the log site.
func (l *logger) emit(level Level, trace, msg string, keysAndValues []interface{}) {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: l.name,
		Message:    msg,
		Caller:     zapcore.NewEntryCaller(runtime.Caller(2)),
	}
	if l.utc {
		entry.Time = entry.Time.UTC()
	}

	fields := make([]zapcore.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	if trace != "" {
		fields = append(fields, zap.String(traceFieldKey, trace))
	}
	l.out.write(entry, fields)
}

func (l *logger) Debug(args ...interface{}) {
	if l.enabled(DEBUG) {
		l.emit(DEBUG, "", fmt.Sprint(args...), nil)
	}
}

func (l *logger) Debugw(msg string, keysAndValues ...interface{}) {
	if l.enabled(DEBUG) {
		l.emit(DEBUG, "", msg, keysAndValues)
	}
}

func (l *logger) CDebugf(ctx context.Context, template string, args ...interface{}) {
	if trace := TraceKey(ctx); trace != "" || l.enabled(DEBUG) {
		l.emit(DEBUG, trace, fmt.Sprintf(template, args...), nil)
	}
}

func (l *logger) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if trace := TraceKey(ctx); trace != "" || l.enabled(DEBUG) {
		l.emit(DEBUG, trace, msg, keysAndValues)
	}
}

func (l *logger) Info(args ...interface{}) {
	if l.enabled(INFO) {
		l.emit(INFO, "", fmt.Sprint(args...), nil)
	}
}

func (l *logger) Infow(msg string, keysAndValues ...interface{}) {
	if l.enabled(INFO) {
		l.emit(INFO, "", msg, keysAndValues)
	}
}

func (l *logger) Warnf(template string, args ...interface{}) {
	if l.enabled(WARN) {
		l.emit(WARN, "", fmt.Sprintf(template, args...), nil)
	}
}

func (l *logger) Warnw(msg string, keysAndValues ...interface{}) {
	if l.enabled(WARN) {
		l.emit(WARN, "", msg, keysAndValues)
	}
}

func (l *logger) Errorw(msg string, keysAndValues ...interface{}) {
	if l.enabled(ERROR) {
		l.emit(ERROR, "", msg, keysAndValues)
	}
}
