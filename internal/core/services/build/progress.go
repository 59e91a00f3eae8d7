package build

import "strings"

// Milestones printed by the builder, in the order they are checked.
var milestones = []struct {
	marker string
	value  int
}{
	{"org.osbuild.rpm", 8},
	{"org.osbuild.selinux", 25},
	{"org.osbuild.ostree.config", 48},
	{"org.osbuild.qemu", 59},
	{"Build complete!", 98},
}

// Fixed increments reported before the builder produces any output, and the
// sentinel reported once the build is over.
const (
	progressPulled    = 4
	progressCleaned   = 5
	progressStarted   = 6
	progressRecorded  = 7
	progressCompleted = -1
)

// ProgressFor returns the increment for the first milestone found in chunk.
func ProgressFor(chunk string) (int, bool) {
	for _, m := range milestones {
		if strings.Contains(chunk, m.marker) {
			return m.value, true
		}
	}
	return 0, false
}
