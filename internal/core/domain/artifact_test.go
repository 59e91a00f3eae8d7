package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactPath(t *testing.T) {
	tests := []struct {
		typ  ImageType
		want string
	}{
		{ImageQCOW2, "/out/qcow2/disk.qcow2"},
		{ImageAMI, "/out/image/disk.raw"},
		{ImageRaw, "/out/image/disk.raw"},
		{ImageISO, "/out/bootiso/disk.iso"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got, err := ArtifactPath("/out", tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifactPathUnknownType(t *testing.T) {
	for _, typ := range []ImageType{"", "vmdk", "QCOW2"} {
		_, err := ArtifactPath("/out", typ)

		var ferr *InvalidFormatError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, string(typ), ferr.Type)
	}
}
