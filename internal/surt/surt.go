// Package surt converts URLs into Sort-friendly URI Reordering Transform form,
// e.g. http://www.example.com/a.pdf becomes com,example)/a.pdf, so that a
// string prefix test implies hierarchical URL containment.
package surt

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var wwwLabel = regexp.MustCompile(`^www\d*\.`)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ftp":   "21",
}

// FromURL canonicalizes raw and returns its SURT form. The scheme, user info
// and fragment are dropped, the host is lowercased and reversed, a leading
// www label is removed, default ports are elided, and query parameters are
// sorted.
func FromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("surt: empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("surt: parse %q: %w", raw, err)
	}
	host := canonicalHost(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("surt: %q has no host", raw)
	}

	var b strings.Builder
	b.WriteString(reverseHost(host))
	if port := u.Port(); port != "" && defaultPorts[strings.ToLower(u.Scheme)] != port {
		b.WriteString(":")
		b.WriteString(port)
	}
	b.WriteString(")")

	path := strings.ToLower(u.EscapedPath())
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	if query := canonicalQuery(u.RawQuery); query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}
	return b.String(), nil
}

func canonicalHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	if net.ParseIP(host) != nil {
		return host
	}
	return wwwLabel.ReplaceAllString(host, "")
}

func reverseHost(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, ",")
}

func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	params := strings.Split(strings.ToLower(raw), "&")
	kept := params[:0]
	for _, p := range params {
		if p != "" {
			kept = append(kept, p)
		}
	}
	sort.Strings(kept)
	return strings.Join(kept, "&")
}
