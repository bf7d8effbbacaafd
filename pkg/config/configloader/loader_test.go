package configloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEnvTransformer(t *testing.T) {
	transform := newEnvTransformer("SHOP_", []string{"media.maxBytes", "server.timeout.readHeader", "log.level"})

	testCases := []struct {
		name     string
		env      string
		expected string
	}{
		{name: "camelCase key keeps its spelling", env: "SHOP_MEDIA_MAXBYTES", expected: "media.maxBytes"},
		{name: "nested camelCase key", env: "SHOP_SERVER_TIMEOUT_READHEADER", expected: "server.timeout.readHeader"},
		{name: "lowercase key", env: "SHOP_LOG_LEVEL", expected: "log.level"},
		{name: "unknown key is lowercased", env: "SHOP_EXTRA_FLAG", expected: "extra.flag"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, transform(tc.env))
		})
	}
}
