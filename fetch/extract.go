package fetch

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// linkAttrs lists the attribute holding a reference for each element.
var linkAttrs = map[atom.Atom]string{
	atom.A:      "href",
	atom.Area:   "href",
	atom.Link:   "href",
	atom.Img:    "src",
	atom.Script: "src",
	atom.Iframe: "src",
	atom.Frame:  "src",
	atom.Embed:  "src",
	atom.Source: "src",
	atom.Form:   "action",
}

// position tracks the line and column of the tokenizer.
type position struct {
	line, column int
}

func (p *position) advance(raw []byte) {
	for _, r := range string(raw) {
		if r == '\n' {
			p.line++
			p.column = 1
			continue
		}
		p.column++
	}
}

// ExtractLinks parses HTML from body and returns every reference it contains
// together with its line and column. The body is decoded to UTF-8 according
// to contentType and any <meta> charset declaration. A <base href> changes
// the base for references that follow it. References are returned as
// written; resolving and normalizing them is up to the caller.
func ExtractLinks(body io.Reader, contentType string, baseURL *url.URL) ([]Link, error) {
	decoded, err := charset.NewReader(body, contentType)
	if err != nil {
		// Unknown charset: tokenize the raw bytes
		decoded = body
	}

	tokenizer := html.NewTokenizer(decoded)
	base := baseURL
	seenBase := false
	pos := position{line: 1, column: 1}
	var links []Link

	for {
		tokenType := tokenizer.Next()
		start := pos
		pos.advance(tokenizer.Raw())

		switch tokenType {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return links, nil
			}
			return links, fmt.Errorf("tokenize html: %w", tokenizer.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()

			if token.DataAtom == atom.Base && !seenBase {
				if href, ok := attrValue(token, "href"); ok {
					if ref, parseErr := url.Parse(href); parseErr == nil {
						base = baseURL.ResolveReference(ref)
						seenBase = true
					}
				}
				continue
			}

			attrName, ok := linkAttrs[token.DataAtom]
			if !ok {
				continue
			}
			ref, ok := attrValue(token, attrName)
			if !ok || skipReference(ref) {
				continue
			}
			links = append(links, Link{
				URL:    ref,
				Base:   base.String(),
				Line:   start.line,
				Column: start.column,
				Tag:    token.Data,
				Attr:   attrName,
			})
		}
	}
}

func attrValue(token html.Token, name string) (string, bool) {
	for _, attr := range token.Attr {
		if attr.Key == name {
			return strings.TrimSpace(attr.Val), true
		}
	}
	return "", false
}

// skipReference filters references that never name another resource.
func skipReference(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(ref), "javascript:")
}
