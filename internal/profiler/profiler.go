// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package profiler implements named CPU/GPU scope timers,
// reported through structured log fields rather than the
// original's global singleton overlay.
//
// Grounded on original_source/src/Core/Profiler.cpp/hpp.
package profiler

import (
	"time"

	"github.com/charmbracelet/log"
)

// Scope is a single named timing region. Scopes are owned
// by a Profiler instance — there is no package-level global
// state, per Design Note #9's "explicit context objects"
// replacement for the original's singleton profiler.
type Scope struct {
	Name    string
	start   time.Time
	last    time.Duration
	avg     time.Duration
	samples int
}

// Profiler aggregates named Scopes for one subsystem (e.g.
// "transport", "denoise", "tonemap").
type Profiler struct {
	logger *log.Logger
	scopes map[string]*Scope
	order  []string
}

// New creates a Profiler that reports through logger. If
// logger is nil, the package default logger is used.
func New(logger *log.Logger) *Profiler {
	if logger == nil {
		logger = log.Default()
	}
	return &Profiler{logger: logger, scopes: make(map[string]*Scope)}
}

// Begin starts (or restarts) timing the named scope and
// returns a function that ends it. Typical use:
//
//	end := p.Begin("vcm-generate-subpaths")
//	defer end()
func (p *Profiler) Begin(name string) func() {
	s, ok := p.scopes[name]
	if !ok {
		s = &Scope{Name: name}
		p.scopes[name] = s
		p.order = append(p.order, name)
	}
	s.start = time.Now()
	return func() { p.end(s) }
}

func (p *Profiler) end(s *Scope) {
	s.last = time.Since(s.start)
	s.samples++
	// Exponential moving average smooths frame-to-frame
	// noise without keeping a full history buffer.
	if s.samples == 1 {
		s.avg = s.last
	} else {
		const alpha = 0.1
		s.avg = time.Duration(float64(s.avg)*(1-alpha) + float64(s.last)*alpha)
	}
}

// Report logs every scope's last and smoothed-average
// duration at debug level, in first-seen order.
func (p *Profiler) Report() {
	for _, name := range p.order {
		s := p.scopes[name]
		p.logger.Debug("scope timing", "scope", s.Name, "last", s.last, "avg", s.avg)
	}
}

// Last returns the most recently recorded duration for name,
// or zero if the scope was never timed.
func (p *Profiler) Last(name string) time.Duration {
	if s, ok := p.scopes[name]; ok {
		return s.last
	}
	return 0
}

// Average returns the smoothed average duration for name, or
// zero if the scope was never timed.
func (p *Profiler) Average(name string) time.Duration {
	if s, ok := p.scopes[name]; ok {
		return s.avg
	}
	return 0
}
