package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Match returns the first element under root matching selector, or root itself
// when root matches and has no matching descendant. Card layouts often make
// the container the anchor.
func Match(root *goquery.Selection, selector string) *goquery.Selection {
	if root == nil || strings.TrimSpace(selector) == "" {
		return nil
	}
	if found := root.Find(selector).First(); found.Length() > 0 {
		return found
	}
	if root.Is(selector) {
		return root.First()
	}
	return nil
}

// Text returns the cleaned text of the first match, "" when absent.
func Text(root *goquery.Selection, selector string) string {
	sel := Match(root, selector)
	if sel == nil {
		return ""
	}
	return CleanText(sel.Text())
}

// Block returns the block-aware text of the first match, "" when absent.
func Block(root *goquery.Selection, selector string) string {
	sel := Match(root, selector)
	if sel == nil {
		return ""
	}
	return SelectionText(sel)
}

// Attr returns an attribute of the first match.
func Attr(root *goquery.Selection, selector, attr string) (string, bool) {
	sel := Match(root, selector)
	if sel == nil {
		return "", false
	}
	v, ok := sel.Attr(attr)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// AllAttr collects an attribute across every match, in document order.
func AllAttr(root *goquery.Selection, selector, attr string) []string {
	if root == nil || strings.TrimSpace(selector) == "" {
		return nil
	}
	var out []string
	root.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	})
	return out
}

// Remove deletes every element matching any of the selectors.
func Remove(root *goquery.Selection, selectors []string) {
	for _, s := range selectors {
		if strings.TrimSpace(s) == "" {
			continue
		}
		root.Find(s).Remove()
	}
}
