package domain

import "path/filepath"

// ImageType is the kind of disk image the builder produces.
type ImageType string

const (
	ImageQCOW2 ImageType = "qcow2"
	ImageAMI   ImageType = "ami"
	ImageRaw   ImageType = "raw"
	ImageISO   ImageType = "iso"
)

var artifactSubpaths = map[ImageType]string{
	ImageQCOW2: "qcow2/disk.qcow2",
	ImageAMI:   "image/disk.raw",
	ImageRaw:   "image/disk.raw",
	ImageISO:   "bootiso/disk.iso",
}

// ArtifactSubpath returns where the builder writes an image of type t,
// relative to the output folder.
func ArtifactSubpath(t ImageType) (string, error) {
	p, ok := artifactSubpaths[t]
	if !ok {
		return "", &InvalidFormatError{Type: string(t)}
	}
	return p, nil
}

// ArtifactPath returns the absolute location of the disk image for a build
// writing into folder.
func ArtifactPath(folder string, t ImageType) (string, error) {
	sub, err := ArtifactSubpath(t)
	if err != nil {
		return "", err
	}
	return filepath.Join(folder, filepath.FromSlash(sub)), nil
}
