package ewf

import (
	"os"

	"github.com/charmbracelet/log"
)

// logger is the package-level structured logger used for checksum-mismatch
// warnings, unknown-section debug lines, and progress-sink routing. It
// replaces the teacher's scattered fmt.Printf diagnostics with leveled,
// structured output in the style the rest of the corpus reaches for.
var logger = log.NewWithOptions(os.Stderr, log.Options{
	Prefix: "ewf",
})

// SetLogger lets a host application swap in its own configured logger, e.g.
// to change the level or attach it to a different writer.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}
