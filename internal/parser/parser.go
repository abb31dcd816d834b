// Package parser extracts links and item fields from catalog HTML using
// goquery selectors. The default Rules describe the NeurIPS proceedings
// markup; callers targeting a different catalog override them.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// Rules holds the markup conventions of one catalog. TitleSelector also
// locates the heading whose text equals AuthorsHeading.
type Rules struct {
	IndexSelector    string
	ItemSelector     string
	TitleSelector    string
	AuthorsHeading   string
	YearPattern      string
	ArtifactSuffixes []string
}

// DefaultRules returns the NeurIPS proceedings conventions.
func DefaultRules() Rules {
	return Rules{
		IndexSelector:    "a[href^='/paper']",
		ItemSelector:     "a[href$='.html']",
		TitleSelector:    "h4",
		AuthorsHeading:   "Authors",
		YearPattern:      `/paper_files/paper/(\d{4})/`,
		ArtifactSuffixes: []string{"-Paper-Conference.pdf", "-Paper.pdf"},
	}
}

// Parser applies Rules to fetched pages.
type Parser struct {
	rules            Rules
	yearPattern      *regexp.Regexp
	artifactSelector string
}

var digitRun = regexp.MustCompile(`\d+`)

// New compiles rules into a Parser.
func New(rules Rules) (*Parser, error) {
	if strings.TrimSpace(rules.IndexSelector) == "" || strings.TrimSpace(rules.ItemSelector) == "" {
		return nil, fmt.Errorf("index and item selectors are required")
	}
	if len(rules.ArtifactSuffixes) == 0 {
		return nil, fmt.Errorf("at least one artifact suffix is required")
	}
	pattern, err := regexp.Compile(rules.YearPattern)
	if err != nil {
		return nil, fmt.Errorf("compile year pattern: %w", err)
	}
	if pattern.NumSubexp() < 1 {
		return nil, fmt.Errorf("year pattern %q needs a capture group", rules.YearPattern)
	}
	selectors := make([]string, 0, len(rules.ArtifactSuffixes))
	for _, suffix := range rules.ArtifactSuffixes {
		selectors = append(selectors, fmt.Sprintf("a[href$='%s']", suffix))
	}
	return &Parser{
		rules:            rules,
		yearPattern:      pattern,
		artifactSelector: strings.Join(selectors, ", "),
	}, nil
}

// ParseIndexLinks returns up to limit index-page URLs from the catalog root,
// deduplicated and ordered newest first by the number embedded in each URL.
// A limit of zero or less returns every link.
func (p *Parser) ParseIndexLinks(body []byte, pageURL string, limit int) ([]string, error) {
	links, err := p.collectLinks(body, pageURL, p.rules.IndexSelector)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(links, func(i, j int) bool {
		return rankOf(links[i]) > rankOf(links[j])
	})
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

// ParseItemLinks returns the item-page URLs linked from an index page.
func (p *Parser) ParseItemLinks(body []byte, pageURL string) ([]string, error) {
	return p.collectLinks(body, pageURL, p.rules.ItemSelector)
}

// ParseItem extracts the fields of one item page. A page without an artifact
// link returns the parsed fields together with harvest.ErrNoArtifact.
func (p *Parser) ParseItem(body []byte, pageURL string) (harvest.ParsedItem, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return harvest.ParsedItem{}, fmt.Errorf("%w: page url %q: %v", harvest.ErrParse, pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return harvest.ParsedItem{}, fmt.Errorf("%w: %v", harvest.ErrParse, err)
	}

	item := harvest.ParsedItem{
		Title:     strings.TrimSpace(doc.Find(p.rules.TitleSelector).First().Text()),
		Authors:   p.authors(doc),
		Year:      p.YearOf(pageURL),
		SourceURL: pageURL,
	}

	href, ok := doc.Find(p.artifactSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return item, harvest.ErrNoArtifact
	}
	artifact, err := resolve(base, href)
	if err != nil {
		return item, fmt.Errorf("%w: artifact link %q: %v", harvest.ErrParse, href, err)
	}
	item.ArtifactURL = artifact
	return item, nil
}

// YearOf returns the year captured by the year pattern, or 0.
func (p *Parser) YearOf(rawURL string) int {
	m := p.yearPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return 0
	}
	year, err := strconv.Atoi(m[1])
	if err != nil || year < 0 {
		return 0
	}
	return year
}

func (p *Parser) authors(doc *goquery.Document) string {
	heading := doc.Find(p.rules.TitleSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == p.rules.AuthorsHeading
	}).First()
	if heading.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(heading.NextAllFiltered("p").First().Find("i").First().Text())
}

func (p *Parser) collectLinks(body []byte, pageURL, selector string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: page url %q: %v", harvest.ErrParse, pageURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harvest.ErrParse, err)
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link, err := resolve(base, href)
		if err != nil {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}

func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// rankOf orders index links by the last number in their path; links without
// one rank as 0.
func rankOf(link string) int {
	path := link
	if u, err := url.Parse(link); err == nil {
		path = u.Path
	}
	runs := digitRun.FindAllString(path, -1)
	if len(runs) == 0 {
		return 0
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil {
		return 0
	}
	return n
}
