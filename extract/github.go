package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/models"
)

const githubBase = "https://github.com"

// Selectors for repository listings.
const (
	repoListWaitSelector = `[data-testid="repository-list"] li, [data-testid="results-list"] li, article`
	repoCardSelector     = `[data-testid="repository-list"] li, [data-testid="results-list"] li, article, li`
	repoDescSelector     = `p, .repo-description, [itemprop="description"]`
	repoLangSelector     = `[itemprop="programmingLanguage"], .repo-language-color + span, [data-testid="repo-card-language"]`
	repoStarSelector     = `a[href$="/stargazers"], [data-testid="stargazers"]`
)

// repoContainerSelectors are tried in order for the markup fallback.
var repoContainerSelectors = []string{
	`[data-testid="repository-list"]`,
	`.repo-list`,
	`[itemtype="http://schema.org/CodeRepository"]`,
}

// Record keys of repository records.
var repoColumns = []string{"name", "url", "description", "language", "stars"}

// repoScript walks the card containers in the live page and returns one
// object per card whose first owner link has text. Links are absolute and
// de-duplicated.
const repoScript = `(user) => {
	const cards = Array.from(document.querySelectorAll('` + repoCardSelector + `'));
	const seen = new Set();
	const data = [];
	for (const el of cards) {
		const link = el.querySelector('a[href*="/' + user + '/"]');
		if (!link) continue;
		const name = link.textContent.trim();
		if (!name) continue;
		const href = link.getAttribute('href') || '';
		const url = href.startsWith('http') ? href : 'https://github.com' + href;
		if (seen.has(url)) continue;
		seen.add(url);
		const desc = el.querySelector('` + repoDescSelector + `');
		const lang = el.querySelector('` + repoLangSelector + `');
		const star = el.querySelector('` + repoStarSelector + `');
		data.push({
			name: name,
			url: url,
			description: desc ? desc.textContent.trim() : '',
			language: lang ? lang.textContent.trim() : '',
			stars: star ? star.textContent.trim() : ''
		});
	}
	return data;
}`

// IsRepoListing reports whether pageURL is a repository listing on the code
// host.
func IsRepoListing(pageURL string) bool {
	lower := strings.ToLower(pageURL)
	return strings.Contains(lower, "github.com") && strings.Contains(lower, "repositories")
}

// OwnerOf returns the first path segment of pageURL.
func OwnerOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	for _, part := range strings.Split(u.Path, "/") {
		if part != "" {
			return part
		}
	}
	return ""
}

// NormalizeOwner extracts the owner from a bare name ("octocat"), a name
// with extra path or query ("octocat?tab=repositories") or a profile URL.
func NormalizeOwner(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(input), "http") {
		return OwnerOf(input)
	}
	input = strings.SplitN(input, "/", 2)[0]
	return strings.SplitN(input, "?", 2)[0]
}

// RepoListURL returns the repository tab of owner's profile.
func RepoListURL(input string) (listURL, owner string, err error) {
	owner = NormalizeOwner(input)
	if owner == "" {
		return "", "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("cannot determine repository owner from %q", input), nil)
	}
	return githubBase + "/" + url.PathEscape(owner) + "?tab=repositories", owner, nil
}

// Repositories extracts repository records from the loaded listing of owner.
// It waits (bounded) for the list, runs the in-page script and falls back to
// parsing the list container's markup.
func (e *Engine) Repositories(ctx context.Context, page browser.Page, owner string) (*models.ExtractionResult, error) {
	if owner == "" {
		return models.Empty(), nil
	}

	// ── 1. Bounded wait for the list ─────────────────────────────────
	waitCtx, cancel := context.WithTimeout(ctx, e.repoListWait())
	if err := page.WaitFor(waitCtx, repoListWaitSelector); err != nil {
		slog.Debug("extract: repository list did not appear in time", "owner", owner, "error", err)
	}
	cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ── 2. In-page script ────────────────────────────────────────────
	val, err := page.Evaluate(ctx, repoScript, owner)
	if err != nil {
		slog.Debug("extract: repository script failed", "owner", owner, "error", err)
	} else {
		var records []models.Record
		for _, item := range val.Arr() {
			rec := make(models.Record, len(repoColumns))
			for _, k := range repoColumns {
				if v := item.Get(k); !v.Nil() {
					rec[k] = strings.TrimSpace(v.Str())
				}
			}
			if rec["name"] != "" {
				records = append(records, rec)
			}
		}
		if len(records) > 0 {
			slog.Debug("extract: repository script matched", "owner", owner, "records", len(records))
			return models.NewRecords(models.ContentStructured, repoColumns, records), nil
		}
	}

	// ── 3. Markup fallback ───────────────────────────────────────────
	for _, sel := range repoContainerSelectors {
		el, ok, err := page.Find(ctx, sel)
		if err != nil || !ok {
			continue
		}
		markup, err := el.HTML(ctx)
		if err != nil {
			continue
		}
		if res := models.NewMarkup(models.ContentRepoMarkup, markup); !res.IsEmpty() {
			return res, nil
		}
	}
	return models.Empty(), nil
}

func (e *Engine) repoListWait() time.Duration {
	if e.cfg.RepoListWait > 0 {
		return e.cfg.RepoListWait
	}
	return 15 * time.Second
}

// RepoCardRecords parses repository cards out of list-container markup,
// applying the same field fallbacks as the in-page script.
func RepoCardRecords(markup, owner string) *models.ExtractionResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return models.Empty()
	}

	cards := doc.Find("li, article").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(strings.ToLower(s.AttrOr("class", "")), "repo")
	})
	if cards.Length() == 0 {
		cards = doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(s.AttrOr("class", "")), "repo")
		})
	}
	if cards.Length() == 0 {
		cards = doc.Find("li, article")
	}

	linkSel := "a[href]"
	if owner != "" {
		linkSel = `a[href*="/` + owner + `/"]`
	}

	seen := make(map[string]struct{})
	var records []models.Record
	cards.Each(func(_ int, card *goquery.Selection) {
		link := card.Find(linkSel).First()
		name := collapse(link.Text())
		if name == "" {
			return
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if !strings.HasPrefix(href, "http") {
			href = githubBase + href
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		records = append(records, models.Record{
			"name":        name,
			"url":         href,
			"description": collapse(card.Find(repoDescSelector).First().Text()),
			"language":    collapse(card.Find(repoLangSelector).First().Text()),
			"stars":       collapse(card.Find(repoStarSelector).First().Text()),
		})
	})
	return models.NewRecords(models.ContentRepoMarkup, repoColumns, records)
}
