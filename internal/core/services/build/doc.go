// Package build orchestrates disk image builds.
//
// A [Service] validates a [domain.BuildRequest], resolves where the disk
// image will be written, and runs a privileged bootc-image-builder container
// on the requested engine. The container output is mirrored to a build log
// in the output folder and scanned for milestones that drive progress
// reporting. Whatever happens after the container is created, it is removed
// together with its volumes before the build returns.
//
// Every status transition is written to a [ports.BuildHistory] so a
// restarted caller can find builds that were in flight.
package build
