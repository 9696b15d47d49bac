// Package browser implements the Site Inspector on headless Chrome via
// Rod. Every Inspect call gets a fresh isolated browsing session; the
// session is released on every exit path.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	domain "github.com/bryanwahyu/gherkin-agent/internal/domain/scans"
)

// Config configures the inspector.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local headless Chrome per call.
	RemoteURL string

	// NavTimeout bounds navigation + DOM readiness. Default: 60s.
	NavTimeout time.Duration

	// Stealth applies the stealth page patches.
	Stealth bool
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
}

type Inspector struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Inspector {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Inspector{cfg: cfg, log: log}
}

// Inspect navigates to the URL, waits for DOM construction (not full
// resource load), and extracts title, visible text, and the interactive
// elements. No retries; the orchestrator owns retry policy.
func (i *Inspector) Inspect(ctx context.Context, rawURL string) (*domain.PageSnapshot, error) {
	target, err := domain.NormalizeTarget(rawURL)
	if err != nil {
		return nil, err
	}

	b, cleanup, err := i.connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNavigationFailed, err)
	}
	defer cleanup()

	var page *rod.Page
	if i.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create page: %v", domain.ErrNavigationFailed, err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, i.cfg.NavTimeout)
	defer cancel()
	p := page.Context(navCtx)

	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(target); err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", domain.ErrNavigationFailed, target, err)
	}
	wait()
	if navCtx.Err() != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", domain.ErrNavigationFailed, target, navCtx.Err())
	}

	snap, err := extract(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNavigationFailed, err)
	}
	i.log.Info("page inspected", "url", target, "title", snap.Title, "elements", len(snap.InteractiveElements))
	return snap, nil
}

// connect returns a browser plus the release function for it. A remote
// browser is shared, so only the page is ours to close; a local launch
// is torn down entirely.
func (i *Inspector) connect() (*rod.Browser, func(), error) {
	if i.cfg.RemoteURL != "" {
		b := rod.New().ControlURL(i.cfg.RemoteURL)
		if err := b.Connect(); err != nil {
			return nil, nil, fmt.Errorf("connect remote browser: %w", err)
		}
		return b, func() {}, nil
	}

	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	return b, func() {
		_ = b.Close()
		l.Cleanup()
	}, nil
}

func extract(p *rod.Page) (*domain.PageSnapshot, error) {
	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("page info: %w", err)
	}

	content, err := p.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	elements, err := p.Eval(`() => {
		const els = document.querySelectorAll('button, a, input, select, textarea');
		return Array.from(els).map(el => ({
			tag: el.tagName.toLowerCase(),
			text: (el.textContent || '').trim(),
			id: el.id || '',
			name: el.name || '',
			placeholder: el.placeholder || '',
			href: el.href || '',
		}));
	}`)
	if err != nil {
		return nil, fmt.Errorf("extract elements: %w", err)
	}

	snap := &domain.PageSnapshot{
		Title:   info.Title,
		Content: content.Value.Str(),
	}
	for _, el := range elements.Value.Arr() {
		snap.InteractiveElements = append(snap.InteractiveElements, domain.InteractiveElement{
			Tag:         el.Get("tag").Str(),
			Text:        el.Get("text").Str(),
			ID:          el.Get("id").Str(),
			Name:        el.Get("name").Str(),
			Placeholder: el.Get("placeholder").Str(),
			Href:        el.Get("href").Str(),
		})
	}
	return snap, nil
}
