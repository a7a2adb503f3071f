// internal/browser/form_analyzer_test.go
package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/pentest-crew/internal/config"
)

func TestParseCookieHeader(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want []Cookie
	}{
		{
			name: "WithHeaderName",
			raw:  "Cookie: PHPSESSID=abc123; security=low\n",
			want: []Cookie{{Name: "PHPSESSID", Value: "abc123"}, {Name: "security", Value: "low"}},
		},
		{
			name: "LowercaseHeaderName",
			raw:  "cookie:security=low",
			want: []Cookie{{Name: "security", Value: "low"}},
		},
		{
			name: "BarePairs",
			raw:  "a=1;b=2=3",
			want: []Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2=3"}},
		},
		{
			name: "SkipsPartsWithoutEquals",
			raw:  "Cookie: junk; ; =nameless; ok=yes",
			want: []Cookie{{Name: "ok", Value: "yes"}},
		},
		{
			name: "Empty",
			raw:  "   ",
			want: nil,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseCookieHeader(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCookieHeader() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadCookies(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cookies, err := LoadCookies(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, cookies)

	cookies, err = LoadCookies("")
	require.NoError(t, err)
	assert.Empty(t, cookies)

	path := filepath.Join(dir, "header.txt")
	require.NoError(t, os.WriteFile(path, []byte("Cookie: PHPSESSID=xyz; security=low"), 0o644))
	cookies, err = LoadCookies(path)
	require.NoError(t, err)
	assert.Equal(t, []Cookie{{Name: "PHPSESSID", Value: "xyz"}, {Name: "security", Value: "low"}}, cookies)
}

func TestAppendCapturedURL(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "captured_urls.txt")

	require.NoError(t, AppendCapturedURL(path, "http://localhost:8085/vulnerabilities/sqli/?id=1&Submit=Submit"))
	require.NoError(t, AppendCapturedURL(path, "http://localhost:8085/vulnerabilities/xss_r/?name=1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"http://localhost:8085/vulnerabilities/sqli/?id=1&Submit=Submit\nhttp://localhost:8085/vulnerabilities/xss_r/?name=1\n",
		string(data))

	assert.NoError(t, AppendCapturedURL("", "ignored"))
	assert.Error(t, AppendCapturedURL(filepath.Join(t.TempDir(), "no", "such", "dir", "f.txt"), "x"))
}

func TestAllocatorFlags(t *testing.T) {
	t.Parallel()

	t.Run("Defaults", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["no-sandbox"])
		_, ok := flags["ignore-certificate-errors"]
		assert.False(t, ok)
	})

	t.Run("HeadfulWithTLSErrorsIgnored", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false, IgnoreTLSErrors: true})
		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, true, flags["ignore-certificate-errors"])
	})

	t.Run("ExtraArgs", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Args: []string{"--proxy-server=http://127.0.0.1:8080", "--incognito", "--"}})
		assert.Equal(t, "http://127.0.0.1:8080", flags["proxy-server"])
		assert.Equal(t, true, flags["incognito"])
		_, ok := flags[""]
		assert.False(t, ok)
	})

	opts := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
	assert.Greater(t, len(opts), len(allocatorFlags(config.BrowserConfig{Headless: true})))
}

func TestNewFormAnalyzer_Defaults(t *testing.T) {
	t.Parallel()
	a := NewFormAnalyzer(config.BrowserConfig{}, "header.txt", "captured_urls.txt", zaptest.NewLogger(t))
	assert.Equal(t, defaultNavigationTimeout, a.cfg.NavigationTimeout)
	assert.Equal(t, defaultSettleWait, a.cfg.SettleWait)
}

func TestAnalyzeAndCapture_RequiresURL(t *testing.T) {
	t.Parallel()
	a := NewFormAnalyzer(config.BrowserConfig{}, "", "", zaptest.NewLogger(t))
	_, err := a.AnalyzeAndCapture(context.Background(), "")
	assert.EqualError(t, err, "base URL is required")
}

func TestLoginScriptQuotesCredentials(t *testing.T) {
	t.Parallel()
	script := loginScript(`ad"min`, "pass")
	assert.Contains(t, script, `"ad\"min"`)
	assert.Contains(t, script, `"pass"`)
}
