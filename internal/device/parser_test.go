package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeMacUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxLinuxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func TestParseDesktopBrowser(t *testing.T) {
	parser := NewParser()

	info := parser.Parse(chromeMacUA)
	assert.Equal(t, "Chrome", info.Browser)
	assert.Contains(t, info.Platform, "Mac")
	assert.False(t, info.IsMobile)
}

func TestParseMobileBrowser(t *testing.T) {
	parser := NewParser()

	info := parser.Parse(safariIPhoneUA)
	assert.Equal(t, "Safari", info.Browser)
	assert.True(t, info.IsMobile)
}

func TestParseLinuxFirefox(t *testing.T) {
	parser := NewParser()

	info := parser.Parse(firefoxLinuxUA)
	assert.Equal(t, "Firefox", info.Browser)
	assert.False(t, info.IsMobile)
}

func TestParseEmptyAndGarbage(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name string
		ua   string
	}{
		{"empty string", ""},
		{"whitespace only", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := parser.Parse(tt.ua)
			assert.Equal(t, UnknownBrowser, info.Browser)
			assert.Equal(t, UnknownOS, info.Platform)
			assert.Equal(t, UnknownDevice, info.Device)
			assert.False(t, info.IsMobile)
		})
	}
}

func TestSummary(t *testing.T) {
	info := Info{Browser: "Chrome", Platform: "Windows 10", Device: "PC"}
	assert.Equal(t, "Windows 10 / Chrome (PC)", info.Summary())
}
