package repository

import "os"

type settings struct {
	fileMode      os.FileMode
	busyTimeoutMS int
}

func defaultSettings() *settings {
	return &settings{fileMode: 0o600, busyTimeoutMS: 5000}
}

// Option tunes the file and SQLite backends.
type Option func(*settings)

// WithFileMode sets the permissions of the YAML file.
func WithFileMode(mode os.FileMode) Option {
	return func(s *settings) {
		if mode != 0 {
			s.fileMode = mode
		}
	}
}

// WithBusyTimeout sets the SQLite busy timeout in milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(s *settings) {
		if ms > 0 {
			s.busyTimeoutMS = ms
		}
	}
}
