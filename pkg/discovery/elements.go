package discovery

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Scores rank how likely an element is a primary interaction target.
const (
	ScoreAction  = 10 // buttons, links, submit inputs
	ScoreField   = 8  // other form fields
	ScoreDefault = 5
)

const maxTextLen = 50

// Selectors match every element a user could plausibly interact with.
var Selectors = []string{
	"button",
	"a",
	"input",
	"select",
	"textarea",
	"[role='button']",
	"[role='link']",
	"[onclick]",
	"[tabindex]:not([tabindex='-1'])",
}

// candidate is an element as reported by the page script. Only visible
// elements are reported.
type candidate struct {
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	Disabled bool   `json:"disabled"`
}

// collectScript returns a JS expression evaluating to the visible
// candidates, in document order.
func collectScript(selectors []string) string {
	sel, _ := json.Marshal(strings.Join(selectors, ", "))
	return `(() => {
	const isVisible = (el) => {
		const style = window.getComputedStyle(el);
		return style.display !== 'none' &&
			style.visibility !== 'hidden' &&
			style.opacity !== '0' &&
			el.offsetWidth > 0 &&
			el.offsetHeight > 0;
	};
	const out = [];
	for (const el of document.querySelectorAll(` + string(sel) + `)) {
		if (!isVisible(el)) continue;
		out.push({
			tag: el.tagName.toLowerCase(),
			type: el.getAttribute('type') || '',
			text: el.innerText || el.value || el.getAttribute('aria-label') || '',
			disabled: !!el.disabled,
		});
	}
	return out;
})()`
}

// score ranks an element by tag and type attribute.
func score(tag, typ string) int {
	switch {
	case tag == "button" || tag == "a" || typ == "submit":
		return ScoreAction
	case tag == "input" || tag == "select" || tag == "textarea":
		return ScoreField
	default:
		return ScoreDefault
	}
}

// normalizeText keeps the first 50 characters, turns newlines into spaces
// and trims the result.
func normalizeText(s string) string {
	if utf8.RuneCountInString(s) > maxTextLen {
		s = string([]rune(s)[:maxTextLen])
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// toElements assigns sequential ids and scores.
func toElements(cands []candidate) []Element {
	elements := make([]Element, 0, len(cands))
	for i, c := range cands {
		elements = append(elements, Element{
			ID:       strconv.Itoa(i),
			Text:     normalizeText(c.Text),
			Tag:      c.Tag,
			Visible:  true,
			Disabled: c.Disabled,
			Score:    score(c.Tag, c.Type),
		})
	}
	return elements
}
