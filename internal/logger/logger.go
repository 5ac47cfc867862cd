// Copyright (C) 2024 The async-file-server Authors.
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package logger is a small leveled logger with pluggable handlers, used
// everywhere in this repository instead of bare fmt.Println so a caller
// (the metrics HTTP server, a test, raven-go's error reporter) can hook in
// without the core depending on any of them.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelOK
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelOK:
		return "OK"
	default:
		return "?"
	}
}

type Handler func(LogLevel, string)

// Logger writes to an underlying *log.Logger and fans every formatted line
// out to any number of registered Handlers (e.g. a test assertion).
type Logger struct {
	mut      sync.Mutex
	std      *log.Logger
	handlers map[LogLevel][]Handler
}

func New() *Logger {
	return &Logger{
		std:      log.New(os.Stdout, "", log.Ldate|log.Ltime),
		handlers: make(map[LogLevel][]Handler),
	}
}

var DefaultLogger = New()

func (l *Logger) SetFlags(flag int)       { l.std.SetFlags(flag) }
func (l *Logger) SetPrefix(prefix string) { l.std.SetPrefix(prefix) }

func (l *Logger) AddHandler(level LogLevel, h Handler) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.handlers[level] = append(l.handlers[level], h)
}

func (l *Logger) log(level LogLevel, msg string) {
	l.std.Printf("%s: %s", level, msg)
	l.mut.Lock()
	hs := l.handlers[level]
	l.mut.Unlock()
	for _, h := range hs {
		h(level, msg)
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Debugln(args ...any)               { l.log(LevelDebug, fmt.Sprintln(args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Infoln(args ...any)                { l.log(LevelInfo, fmt.Sprintln(args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnln(args ...any)                { l.log(LevelWarn, fmt.Sprintln(args...)) }
func (l *Logger) Okf(format string, args ...any)    { l.log(LevelOK, fmt.Sprintf(format, args...)) }
func (l *Logger) Okln(args ...any)                  { l.log(LevelOK, fmt.Sprintln(args...)) }
