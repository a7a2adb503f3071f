// internal/browser/form_analyzer.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentest-crew/internal/config"
)

const (
	defaultNavigationTimeout = 5 * time.Second
	defaultSettleWait        = 3 * time.Second
	// Upper bound for one whole analysis, browser startup included.
	analysisTimeout = 2 * time.Minute
)

// FormAnalyzer drives a headless Chrome to submit the first form on a page
// and record the URL the submission lands on. It implements tools.URLCapturer.
type FormAnalyzer struct {
	cfg             config.BrowserConfig
	headerFile      string
	capturedURLFile string
	logger          *zap.Logger

	// Serializes appends to the capture log.
	mu sync.Mutex
}

// NewFormAnalyzer creates an analyzer. Cookies are read from headerFile on
// every call so that an operator can refresh the session between runs.
func NewFormAnalyzer(cfg config.BrowserConfig, headerFile, capturedURLFile string, logger *zap.Logger) *FormAnalyzer {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = defaultSettleWait
	}
	return &FormAnalyzer{
		cfg:             cfg,
		headerFile:      headerFile,
		capturedURLFile: capturedURLFile,
		logger:          logger.Named("form_analyzer"),
	}
}

// AnalyzeAndCapture loads baseURL with the stored cookies, logs in when a
// login form is shown, fills and submits the first form and returns the final
// page URL. The URL is also appended to the capture log.
func (a *FormAnalyzer) AnalyzeAndCapture(ctx context.Context, baseURL string) (string, error) {
	if baseURL == "" {
		return "", errors.New("base URL is required")
	}
	cookies, err := LoadCookies(a.headerFile)
	if err != nil {
		return "", err
	}

	runCtx, runCancel := context.WithTimeout(ctx, analysisTimeout)
	defer runCancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(runCtx, DefaultAllocatorOptions(a.cfg)...)
	defer allocCancel()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	// The first Run allocates the browser, so it must not carry a short deadline.
	if err := chromedp.Run(tabCtx, network.Enable(), setCookies(cookies, baseURL)); err != nil {
		return "", fmt.Errorf("failed to start browser session: %w", err)
	}

	a.navigate(tabCtx, baseURL)

	var hasLogin bool
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(loginFormProbe, &hasLogin)); err != nil {
		return "", fmt.Errorf("failed to inspect page: %w", err)
	}
	if hasLogin {
		a.logger.Info("Login form detected, signing in.", zap.String("url", baseURL))
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(loginScript(a.cfg.LoginUser, a.cfg.LoginPassword), nil),
			chromedp.Sleep(a.cfg.SettleWait),
		); err != nil {
			return "", fmt.Errorf("failed to submit login form: %w", err)
		}
		a.navigate(tabCtx, baseURL)
	}

	var filled int
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(fillFormScript, &filled)); err != nil {
		return "", fmt.Errorf("failed to fill form: %w", err)
	}
	if filled >= 0 {
		a.logger.Debug("Submitting form.", zap.Int("fields", filled))
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(submitFormScript, nil),
			chromedp.Sleep(a.cfg.SettleWait),
		); err != nil {
			return "", fmt.Errorf("failed to submit form: %w", err)
		}
	} else {
		a.logger.Info("No form found on page.", zap.String("url", baseURL))
	}

	var final string
	if err := chromedp.Run(tabCtx, chromedp.Location(&final)); err != nil {
		return "", fmt.Errorf("failed to read final location: %w", err)
	}

	a.mu.Lock()
	err = AppendCapturedURL(a.capturedURLFile, final)
	a.mu.Unlock()
	if err != nil {
		a.logger.Warn("Could not record captured URL.", zap.String("file", a.capturedURLFile), zap.Error(err))
	}
	a.logger.Info("Captured URL.", zap.String("base_url", baseURL), zap.String("final_url", final))
	return final, nil
}

// navigate loads url under the navigation timeout. A timeout leaves whatever
// has loaded so far in place.
func (a *FormAnalyzer) navigate(ctx context.Context, url string) {
	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		a.logger.Debug("Navigation did not complete.", zap.String("url", url), zap.Error(err))
	}
}

func setCookies(cookies []Cookie, url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(cookies) == 0 {
			return nil
		}
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			params = append(params, &network.CookieParam{Name: c.Name, Value: c.Value, URL: url})
		}
		return network.SetCookies(params).Do(ctx)
	})
}

// DefaultAllocatorOptions builds the Chrome launch options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// allocatorFlags lists the command line flags layered over chromedp's defaults.
// Entries in cfg.Args are "--name=value" or bare "--name" switches.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":              cfg.Headless,
		"disable-gpu":           true,
		"no-sandbox":            true,
		"disable-dev-shm-usage": true,
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags[name] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// Cookie is one name/value pair from the stored Cookie header.
type Cookie struct {
	Name  string
	Value string
}

// ParseCookieHeader splits a raw "Cookie:" header line into cookies. The
// header name is optional and matched case-insensitively; parts without "="
// are skipped.
func ParseCookieHeader(raw string) []Cookie {
	raw = strings.TrimSpace(raw)
	if len(raw) >= len("cookie:") && strings.EqualFold(raw[:len("cookie:")], "cookie:") {
		raw = strings.TrimSpace(raw[len("cookie:"):])
	}
	var cookies []Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}

// LoadCookies reads and parses the header file. A missing file means no cookies.
func LoadCookies(path string) ([]Cookie, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header file: %w", err)
	}
	return ParseCookieHeader(string(data)), nil
}

// AppendCapturedURL appends url as one line to the capture log at path.
func AppendCapturedURL(path, url string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open capture log: %w", err)
	}
	if _, err := f.WriteString(url + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write capture log: %w", err)
	}
	return f.Close()
}

const loginFormProbe = `!!document.querySelector("form[action*='login.php']")`

func loginScript(user, password string) string {
	return fmt.Sprintf(`(() => {
  const set = (sel, v) => { const el = document.querySelector(sel); if (el) { el.value = v; } };
  set("input[name='username']", %s);
  set("input[name='password']", %s);
  const btn = document.querySelector("input[type='submit'],button[type='submit']");
  if (btn) { btn.click(); } else { const f = document.querySelector("form"); if (f) { f.submit(); } }
  return true;
})()`, strconv.Quote(user), strconv.Quote(password))
}

// fillFormScript fills text-like inputs of the first form with "1" and picks
// the first option of each select. It returns the number of fields set, or -1
// when the page has no form.
const fillFormScript = `(() => {
  const form = document.querySelector("form");
  if (!form) { return -1; }
  const textual = ["text", "hidden", "search", "email", "url", "number", "password"];
  let n = 0;
  for (const inp of form.querySelectorAll("input[name]")) {
    const typ = (inp.getAttribute("type") || "text").toLowerCase();
    if (textual.includes(typ)) { inp.value = "1"; n++; }
  }
  for (const sel of form.querySelectorAll("select[name]")) {
    const opt = sel.querySelector("option[value]");
    if (opt) { sel.value = opt.getAttribute("value"); n++; }
  }
  return n;
})()`

const submitFormScript = `(() => {
  const form = document.querySelector("form");
  if (!form) { return false; }
  const btn = form.querySelector("input[type='submit'],button[type='submit']");
  if (btn) { btn.click(); } else { form.submit(); }
  return true;
})()`
