package news

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mjessen/stockalerts/internal/models"
)

// EnsureScheme prefixes schemeless URLs with https:// so feed links that
// carry bare domains stay usable.
func EnsureScheme(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}

// Domain returns the host of a URL without a leading "www." for compact
// display, or the input when it cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(EnsureScheme(rawURL))
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// CleanLink tries to recover the original article URL from a Google News
// redirect link. It prefers the url= query parameter, then follows
// redirects with a short-timeout HEAD (GET fallback). The second return
// reports whether resolution succeeded; on any failure the input comes
// back unchanged.
func (f *Fetcher) CleanLink(ctx context.Context, link string) (string, bool) {
	link = EnsureScheme(link)
	if link == "" {
		return "", false
	}

	u, err := url.Parse(link)
	if err != nil {
		return link, false
	}

	host := strings.ToLower(u.Hostname())
	if host == "news.google.com" || strings.HasSuffix(host, ".news.google.com") {
		if orig := u.Query().Get("url"); orig != "" {
			return orig, true
		}
	}

	final, ok := f.resolveRedirect(ctx, http.MethodHead, link)
	if !ok {
		final, ok = f.resolveRedirect(ctx, http.MethodGet, link)
	}
	if ok && final != "" && final != link {
		return final, true
	}
	return link, false
}

func (f *Fetcher) resolveRedirect(ctx context.Context, method, link string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return "", false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", false
	}
	return resp.Request.URL.String(), true
}

// FormatHeadlines renders the Markdown block embedded into the
// notification body. Markdown renders in the ntfy web app; the plain URL
// line keeps links tappable in the mobile apps.
func (f *Fetcher) FormatHeadlines(ctx context.Context, items []models.HeadlineItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n📰 News:")
	for _, item := range items {
		b.WriteString("\n- ")
		b.WriteString(item.Title)
		if item.Source != "" {
			b.WriteString(" (")
			b.WriteString(item.Source)
			b.WriteString(")")
		}
		if item.Link == "" {
			continue
		}
		link, resolved := f.CleanLink(ctx, item.Link)
		b.WriteString("\n  ")
		if resolved {
			b.WriteString("[")
			b.WriteString(Domain(link))
			b.WriteString("](")
			b.WriteString(link)
			b.WriteString(")")
		} else {
			b.WriteString(link)
		}
	}
	return b.String()
}
