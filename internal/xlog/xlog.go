// Package xlog defines the logging sink the alignment core is injected
// with. The core never reaches for a process-wide logger; callers
// construct a Logger once (zerolog-backed, by default) and pass it in.
package xlog

// Logger is the narrow interface the alignment core depends on. It is
// satisfied by *zerologLogger (see New) and by Noop for tests that don't
// care about log output.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Noop discards everything. Useful as the default in tests and in
// components constructed without an explicit Logger.
type Noop struct{}

func (Noop) Debugf(string, ...any) {}
func (Noop) Infof(string, ...any)  {}
func (Noop) Warnf(string, ...any)  {}
func (Noop) Errorf(string, ...any) {}
