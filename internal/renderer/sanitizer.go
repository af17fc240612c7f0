package renderer

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// strippedTags are dropped entirely (including their content), per spec
// §4.6.1.
var strippedTags = map[string]bool{
	"script": true, "object": true, "embed": true, "applet": true,
}

// dangerousCSSPatterns catches the CSS injection vectors spec §4.6.1
// calls out: expression(), behavior:url(), @import.
var dangerousCSSPatterns = []string{"expression(", "behavior:url(", "@import"}

// SanitizeHTML strips or neutralizes the content listed in spec
// §4.6.1: dangerous tags, event-handler attributes, javascript: URLs,
// data: URLs outside <img src>, and dangerous CSS constructs, adding an
// empty sandbox attribute to any surviving (non-stripped) iframe. It is
// defense in depth, not a security boundary on its own.
func SanitizeHTML(data []byte) []byte {
	z := html.NewTokenizer(bytes.NewReader(data))
	var out bytes.Buffer
	var skipDepth int // nesting depth inside a stripped tag's content

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if strippedTags[tok.Data] {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			sanitizeAttrs(&tok)
			if tok.Data == "iframe" && !hasAttr(tok.Attr, "sandbox") {
				tok.Attr = append(tok.Attr, html.Attribute{Key: "sandbox", Val: ""})
			}
			out.WriteString(tok.String())

		case html.EndTagToken:
			if strippedTags[tok.Data] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			out.WriteString(tok.String())

		default:
			if skipDepth > 0 {
				continue
			}
			out.WriteString(tok.String())
		}
	}
	return out.Bytes()
}

func hasAttr(attrs []html.Attribute, key string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func sanitizeAttrs(tok *html.Token) {
	kept := tok.Attr[:0]
	for _, a := range tok.Attr {
		lowerKey := strings.ToLower(a.Key)
		if strings.HasPrefix(lowerKey, "on") {
			continue // event-handler attribute, per spec §4.6.1
		}
		val := strings.TrimSpace(strings.ToLower(a.Val))
		if strings.HasPrefix(val, "javascript:") {
			continue
		}
		if strings.HasPrefix(val, "data:") && !(lowerKey == "src" && tok.Data == "img") {
			continue
		}
		if lowerKey == "style" && containsDangerousCSS(val) {
			a.Val = stripDangerousCSS(a.Val)
		}
		kept = append(kept, a)
	}
	tok.Attr = kept
}

func containsDangerousCSS(lowerVal string) bool {
	for _, p := range dangerousCSSPatterns {
		if strings.Contains(lowerVal, p) {
			return true
		}
	}
	return false
}

// stripDangerousCSS removes any declaration segment containing one of
// the blocked patterns, rather than discarding the whole style value.
func stripDangerousCSS(val string) string {
	parts := strings.Split(val, ";")
	var kept []string
	for _, p := range parts {
		lower := strings.ToLower(p)
		if containsDangerousCSS(lower) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ";")
}
