package markup

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var hrefPageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`pageId=(\d+)`),
	regexp.MustCompile(`/pages/viewpage\.action\?pageId=(\d+)`),
	regexp.MustCompile(`/wiki/spaces/[^/]+/pages/(\d+)`),
	regexp.MustCompile(`/pages/(\d+)`),
}

// ExtractUnapprovedLinks returns the Confluence page ids referenced
// from unapproved (colored) parts of the document. Links inside
// approved text point at settled requirements and are not interesting;
// a link inside a pending change marks a page worth pulling into the
// analysis context.
func ExtractUnapprovedLinks(raw string, policy StylePolicy) ([]string, error) {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	var walk func(n *html.Node, state ApprovalState)
	walk = func(n *html.Node, state ApprovalState) {
		if n.Type != html.ElementNode {
			return
		}
		if color := colorFromStyleAttr(attr(n, "style")); color != "" {
			state = policy.Classify(Style{Color: color})
		}
		if state == StateUnapproved {
			switch n.Data {
			case "a":
				add(pageIDFromHref(attr(n, "href")))
			case "ri:page":
				add(attr(n, "ri:content-id"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, state)
		}
	}
	walk(body.Get(0), StateApproved)

	return out, nil
}

func pageIDFromHref(href string) string {
	for _, re := range hrefPageIDPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}
