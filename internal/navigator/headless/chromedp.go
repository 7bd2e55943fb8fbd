// Package headless implements archive.Navigator with chromedp and headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

// DefaultNavigationTimeout bounds page loads and element reads.
const DefaultNavigationTimeout = 45 * time.Second

// Config controls the browser sessions.
type Config struct {
	// Headful shows the browser window; sessions are headless by default.
	Headful           bool          `mapstructure:"headful"`
	ExecPath          string        `mapstructure:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	Headers           http.Header   `mapstructure:"-"`
}

// Allocator owns the Chrome launch options shared by every session.
type Allocator struct {
	cfg         Config
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewAllocator prepares, but does not launch, Chrome.
func NewAllocator(cfg Config, logger *zap.Logger) *Allocator {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Allocator{cfg: cfg, logger: logger, allocator: allocCtx, allocCancel: allocCancel}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	// Chrome refuses to start its sandbox as root, as in most containers.
	if os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

// Close cancels the allocator context and with it every browser it launched.
func (a *Allocator) Close() {
	a.allocCancel()
}

// Factory opens one exclusive browser per call.
func (a *Allocator) Factory() archive.NavigatorFactory {
	return func(ctx context.Context) (archive.Navigator, error) {
		return a.NewNavigator(ctx)
	}
}

// NewNavigator launches a browser and applies the network settings.
func (a *Allocator) NewNavigator(ctx context.Context) (*Navigator, error) {
	browserCtx, cancel := chromedp.NewContext(a.allocator)
	n := &Navigator{
		cfg:        a.cfg,
		logger:     a.logger,
		browserCtx: browserCtx,
		cancel:     cancel,
		meta:       newResponseMeta(),
	}
	chromedp.ListenTarget(browserCtx, n.meta.captureEvent)
	if err := n.run(ctx, a.cfg.NavigationTimeout, n.networkSetupAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return n, nil
}

// Navigator is one browser session. It is not safe for concurrent use.
type Navigator struct {
	cfg        Config
	logger     *zap.Logger
	browserCtx context.Context
	cancel     context.CancelFunc
	meta       *responseMeta
	closeOnce  sync.Once
}

// Load navigates to url and fails on transport errors or an HTTP error status.
func (n *Navigator) Load(ctx context.Context, url string) error {
	n.meta.reset()
	if err := n.run(ctx, n.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if status := n.meta.status(); status >= http.StatusBadRequest {
		return fmt.Errorf("%w: HTTP %d loading %s", archive.ErrStatus, status, url)
	}
	return nil
}

// WaitForElement waits until selector matches a node in the current page.
func (n *Navigator) WaitForElement(ctx context.Context, selector string, timeout time.Duration) (archive.Element, error) {
	var nodes []*cdp.Node
	err := n.run(ctx, timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQuery))
	if err != nil {
		if timedOut(ctx, err) {
			return nil, fmt.Errorf("%w: %s after %s", archive.ErrElementTimeout, selector, timeout)
		}
		return nil, fmt.Errorf("wait for %s: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", archive.ErrElementTimeout, selector)
	}
	return &element{nav: n, node: nodes[0]}, nil
}

// FindElements returns every node currently matching selector, possibly none.
func (n *Navigator) FindElements(ctx context.Context, selector string) ([]archive.Element, error) {
	var nodes []*cdp.Node
	err := n.run(ctx, n.cfg.NavigationTimeout,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", selector, err)
	}
	out := make([]archive.Element, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, &element{nav: n, node: node})
	}
	return out, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (n *Navigator) Close() error {
	var err error
	n.closeOnce.Do(func() {
		if cerr := chromedp.Cancel(n.browserCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("close browser: %w", cerr)
		}
		n.cancel()
	})
	return err
}

// run executes actions in the browser, bounded by timeout and by ctx.
func (n *Navigator) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(n.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (n *Navigator) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if n.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(n.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(n.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(n.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// timedOut reports whether err came from the per-call timeout rather than ctx.
func timedOut(ctx context.Context, err error) bool {
	return ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}

type element struct {
	nav  *Navigator
	node *cdp.Node
}

// Attribute prefers the DOM property, which resolves href and src to absolute
// URLs, and falls back to the raw attribute.
func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var value string
	err := e.nav.run(ctx, e.nav.cfg.NavigationTimeout,
		chromedp.JavascriptAttribute([]cdp.NodeID{e.node.NodeID}, name, &value, chromedp.ByNodeID))
	if err == nil && value != "" {
		return value, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if raw, ok := e.node.Attribute(name); ok {
		return raw, nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s of <%s>: %w", name, e.node.LocalName, err)
	}
	return "", nil
}

// Text returns the visible text of the node.
func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.nav.run(ctx, e.nav.cfg.NavigationTimeout,
		chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("read text of <%s>: %w", e.node.LocalName, err)
	}
	return text, nil
}

// responseMeta remembers the status of the last document response.
type responseMeta struct {
	mu   sync.RWMutex
	code int
	url  string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.code = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.code, m.url = 0, ""
	m.mu.Unlock()
}

func (m *responseMeta) status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.code
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
