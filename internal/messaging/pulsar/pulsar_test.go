package pulsar

import (
	"testing"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
)

func TestCompressionType(t *testing.T) {
	tests := map[string]struct {
		name     string
		expected pulsar.CompressionType
		wantErr  bool
	}{
		"default": {name: "", expected: pulsar.NoCompression},
		"none":    {name: "None", expected: pulsar.NoCompression},
		"lz4":     {name: "LZ4", expected: pulsar.LZ4},
		"zlib":    {name: "Zlib", expected: pulsar.ZLib},
		"zstd":    {name: "zstd", expected: pulsar.ZSTD},
		"unknown": {name: "snappy", wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			compression, err := CompressionType(tc.name)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, compression)
		})
	}
}
