package enrich

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/surt"
	"github.com/JakeFAU/docwatch/internal/watch"
)

// ScopePolicy accepts documents that belong to a watched target.
//
// The owning target comes from the candidate's source tag when it names one,
// otherwise from the watched target whose seed is the longest SURT prefix of
// the landing page.
type ScopePolicy struct {
	reject []*regexp.Regexp
}

var _ Policy = (*ScopePolicy)(nil)

// NewScopePolicy compiles the reject patterns, which are matched against the
// document URL.
func NewScopePolicy(rejectPatterns []string) (*ScopePolicy, error) {
	p := &ScopePolicy{}
	for _, raw := range rejectPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile reject pattern %q: %w", raw, err)
		}
		p.reject = append(p.reject, re)
	}
	return p, nil
}

// Extract implements Policy.
func (p *ScopePolicy) Extract(_ context.Context, targets *watch.Snapshot, c docs.Candidate, source string) (Metadata, string, bool) {
	if targets == nil {
		return Metadata{}, "no targets loaded", false
	}
	target, ok := p.resolveTarget(targets, c, source)
	if !ok {
		return Metadata{}, "no owning target", false
	}
	if !target.Watched {
		return Metadata{}, "target " + strconv.FormatInt(target.ID, 10) + " is not watched", false
	}
	for _, re := range p.reject {
		if re.MatchString(c.DocumentURL) {
			return Metadata{}, "matches reject pattern " + re.String(), false
		}
	}
	if c.Filename == "" {
		return Metadata{}, "document has no filename", false
	}

	fields := map[string]string{
		"target_title": target.Title,
	}
	if u, err := url.Parse(c.DocumentURL); err == nil {
		fields["host"] = u.Hostname()
	}
	return Metadata{
		WatchedTargetID: target.ID,
		Title:           TitleFromFilename(c.Filename),
		Fields:          fields,
	}, "", true
}

func (p *ScopePolicy) resolveTarget(targets *watch.Snapshot, c docs.Candidate, source string) (docs.Target, bool) {
	if id, ok := docs.TargetIDFromSource(source); ok {
		return targets.Target(id)
	}
	landing, err := surt.FromURL(c.LandingPageURL)
	if err != nil {
		return docs.Target{}, false
	}

	var (
		best    docs.Target
		bestLen int
	)
	for _, t := range targets.Targets {
		if !t.Watched {
			continue
		}
		for _, seed := range t.Seeds {
			prefix, err := surt.FromURL(seed)
			if err != nil || !strings.HasPrefix(landing, prefix) {
				continue
			}
			if len(prefix) > bestLen {
				best, bestLen = t, len(prefix)
			}
		}
	}
	return best, bestLen > 0
}

var titleSeparators = strings.NewReplacer("-", " ", "_", " ", "+", " ", ".", " ")

// TitleFromFilename derives a readable title from a document filename:
// unescaped, extension dropped, separators turned into single spaces.
func TitleFromFilename(filename string) string {
	name := filename
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.Join(strings.Fields(titleSeparators.Replace(name)), " ")
}
