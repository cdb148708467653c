// Package proxylog provides lightweight, leveled logging for turboproxy.
//
// Error logging always runs. Debug logging is gated by the
// TURBOPROXY_DEBUG environment variable so it costs nothing in the hot
// path when disabled.
package proxylog

import (
	"log"
	"os"
	"sync"
)

var (
	debugOnce    sync.Once
	debugEnabled bool
)

func debugGate() bool {
	debugOnce.Do(func() {
		debugEnabled = os.Getenv("TURBOPROXY_DEBUG") != ""
	})
	return debugEnabled
}

// Error logs an application-level error. Always emitted.
func Error(format string, args ...any) {
	log.Printf("[ERROR] "+format, args...)
}

// Errno logs an error alongside the underlying syscall/errno-shaped error value.
func Errno(err error, format string, args ...any) {
	log.Printf("[ERROR] "+format+": %v", append(append([]any{}, args...), err)...)
}

// Debugf logs a debug message when TURBOPROXY_DEBUG is set; otherwise it is a no-op.
func Debugf(format string, args ...any) {
	if !debugGate() {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}
