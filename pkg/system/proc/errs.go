package proc

import "github.com/pkg/errors"

var (
	// ErrNoStat indicates that /proc/<pid>/stat was empty or malformed.
	ErrNoStat = errors.New("proc: malformed or empty stat")

	// ErrNoCPU indicates that /proc/stat had no per-CPU lines.
	ErrNoCPU = errors.New("proc: no cpu line")

	// ErrNoMemTotal indicates that /proc/meminfo lacked MemTotal.
	ErrNoMemTotal = errors.New("proc: no MemTotal")
)
