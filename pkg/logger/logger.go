package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/debug"

	"github.com/bitechdev/EndpointKit/pkg/errortracking"
	"go.uber.org/zap"
)

var Logger *zap.SugaredLogger
var errorTracker errortracking.Provider

func Init(dev bool) {
	if dev {
		cfg := zap.NewDevelopmentConfig()
		UpdateLogger(&cfg)
	} else {
		cfg := zap.NewProductionConfig()
		UpdateLogger(&cfg)
	}
}

func UpdateLoggerPath(path string, dev bool) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	UpdateLogger(&cfg)
}

func UpdateLogger(config *zap.Config) {
	if config == nil {
		defaultConfig := zap.NewProductionConfig()
		defaultConfig.OutputPaths = []string{"endpointkit.log"}
		config = &defaultConfig
	}

	l, err := config.Build()
	if err != nil {
		log.Print(err)
		return
	}

	Logger = l.Sugar()
	Info("EndpointKit logger initialized")
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// InitErrorTracking initializes the error tracking provider
func InitErrorTracking(provider errortracking.Provider) {
	errorTracker = provider
	if errorTracker != nil {
		Info("Error tracking initialized")
	}
}

// GetErrorTracker returns the current error tracking provider
func GetErrorTracker() errortracking.Provider {
	return errorTracker
}

// CloseErrorTracking flushes and closes the error tracking provider
func CloseErrorTracking() error {
	if errorTracker != nil {
		errorTracker.Flush(5)
		return errorTracker.Close()
	}
	return nil
}

func Info(template string, args ...interface{}) {
	if Logger == nil {
		log.Printf(template, args...)
		return
	}
	Logger.Infow(fmt.Sprintf(template, args...), "process_id", os.Getpid())
}

func Warn(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if Logger == nil {
		log.Printf("%s", message)
	} else {
		Logger.Warnw(message, "process_id", os.Getpid())
	}
	track(message, errortracking.SeverityWarning)
}

func Error(template string, args ...interface{}) {
	message := fmt.Sprintf(template, args...)
	if Logger == nil {
		log.Printf("%s", message)
	} else {
		Logger.Errorw(message, "process_id", os.Getpid())
	}
	track(message, errortracking.SeverityError)
}

func Debug(template string, args ...interface{}) {
	if Logger == nil {
		log.Printf(template, args...)
		return
	}
	Logger.Debugw(fmt.Sprintf(template, args...), "process_id", os.Getpid())
}

func track(message string, severity errortracking.Severity) {
	if errorTracker == nil {
		return
	}
	errorTracker.CaptureMessage(context.Background(), message, severity, map[string]interface{}{
		"process_id": os.Getpid(),
	})
}

// CatchPanicCallback recovers a panic, reports it and hands the recovered
// value to cb. Must be deferred directly.
func CatchPanicCallback(location string, cb func(err any)) {
	if err := recover(); err != nil {
		reportPanic(location, err)
		if cb != nil {
			cb(err)
		}
	}
}

// CatchPanic - Handle panic. Must be deferred directly.
func CatchPanic(location string) {
	if err := recover(); err != nil {
		reportPanic(location, err)
	}
}

func reportPanic(location string, err any) {
	callstack := debug.Stack()

	if Logger != nil {
		Error("Panic in %s : %v", location, err)
	} else {
		fmt.Printf("%s:PANIC->%+v", location, err)
		debug.PrintStack()
	}

	if errorTracker != nil {
		errorTracker.CapturePanic(context.Background(), err, callstack, map[string]interface{}{
			"location":   location,
			"process_id": os.Getpid(),
		})
	}
}

// HandlePanic logs a panic and returns it as an error
// This should be called with the result of recover() from a deferred function
// Example usage:
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = logger.HandlePanic("MethodName", r)
//	    }
//	}()
func HandlePanic(methodName string, r any) error {
	stack := debug.Stack()
	Error("Panic in %s: %v\nStack trace:\n%s", methodName, r, string(stack))

	if errorTracker != nil {
		errorTracker.CapturePanic(context.Background(), r, stack, map[string]interface{}{
			"method":     methodName,
			"process_id": os.Getpid(),
		})
	}

	return fmt.Errorf("panic in %s: %v", methodName, r)
}
