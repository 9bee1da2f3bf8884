// Package sanitize reduces note markup to a small allow-list of tags.
// It runs on both sides of the crypto boundary: before a note is encrypted
// and again after decryption, so content that bypassed the sanitizer on an
// older client is still neutralized on read.
package sanitize

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// allowedTags is the markup the journal editor is permitted to produce.
var allowedTags = map[string]bool{
	"p": true, "br": true, "div": true, "span": true,
	"b": true, "strong": true, "i": true, "em": true, "u": true, "s": true,
	"h1": true, "h2": true, "h3": true,
	"ul": true, "ol": true, "li": true,
	"blockquote": true, "pre": true, "code": true,
	"a": true,
}

// voidTags never get a closing tag.
var voidTags = map[string]bool{"br": true}

// droppedWithContent are removed together with everything inside them.
var droppedWithContent = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true,
}

// Clean returns s with every tag outside the allow-list removed. Attributes
// are dropped except href on <a>, which must be http, https, or mailto.
// Text content is preserved and re-escaped. Clean is idempotent.
func Clean(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or malformed tail; either way we are done
			return b.String()
		}

		tok := z.Token()
		name := tok.Data

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if droppedWithContent[name] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 || !allowedTags[name] {
				continue
			}
			writeTag(&b, name, tok.Attr)
		case html.EndTagToken:
			if droppedWithContent[name] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 || !allowedTags[name] || voidTags[name] {
				continue
			}
			b.WriteString("</")
			b.WriteString(name)
			b.WriteString(">")
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			b.WriteString(html.EscapeString(tok.Data))
		}
		// comments and doctypes are dropped
	}
}

// IsEmpty reports whether s carries no visible content once markup is
// stripped. The editor represents a blank day as "" or markup-only shells
// like "<p><br></p>"; both count as empty.
func IsEmpty(s string) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return true
		}
		if tt == html.TextToken {
			if strings.TrimSpace(z.Token().Data) != "" {
				return false
			}
		}
	}
}

func writeTag(b *strings.Builder, name string, attrs []html.Attribute) {
	b.WriteString("<")
	b.WriteString(name)
	if name == "a" {
		for _, a := range attrs {
			if a.Key == "href" && safeHref(a.Val) {
				b.WriteString(` href="`)
				b.WriteString(html.EscapeString(a.Val))
				b.WriteString(`"`)
				break
			}
		}
	}
	b.WriteString(">")
}

func safeHref(v string) bool {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return true
	default:
		return false
	}
}
