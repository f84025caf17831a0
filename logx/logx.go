// Package logx provides the one, module-level logger every other
// package in spaghettifs writes through, instead of each reaching for
// its own ad-hoc fmt.Println or log.Printf. It is configured exactly
// once, at mkfs/mount/fsck entry, and is safe to read concurrently
// afterwards.
//
// Grounded on nicolagi/muscle's use of sirupsen/logrus for the same
// content-addressable-filesystem domain (other_examples reference); no
// pack repo targeted at this domain rolls its own logger.
package logx

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	log  = logrus.New()
)

// Configure sets the package logger's level and output. It is expected
// to be called once, from a CLI entry point, before any session is
// opened. Calling it again after the first call is a no-op so that
// library code embedding spaghettifs cannot be surprised by a caller
// re-configuring levels mid-session.
func Configure(level logrus.Level, quiet bool) {
	once.Do(func() {
		log.SetLevel(level)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if quiet {
			log.SetOutput(os.Stderr)
			log.SetLevel(logrus.ErrorLevel)
		}
	})
}

// L returns the shared logger. It is always safe to call, configured or
// not — an unconfigured logger defaults to logrus's Info level on
// stderr, which is a reasonable default for tests and library embedders
// that never call Configure.
func L() *logrus.Logger {
	return log
}
