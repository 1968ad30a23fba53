package discovery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObservation(t *testing.T) {
	const body = `{"screenshot":"/a/screenshot.png","metadata":{"url":"https://example.com","title":"Ex"},"elements":[{"id":"0","text":"Go","tag":"button","visible":true,"disabled":false,"score":10}]}`

	tests := []struct {
		name  string
		input string
	}{
		{"plain", body},
		{"fenced", "```json\n" + body + "\n```"},
		{"bare fence", "```\n" + body + "\n```"},
		{"prose around", "Here is the result:\n" + body + "\nDone."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := ParseObservation(tt.input)
			require.NoError(t, err)
			assert.Equal(t, "/a/screenshot.png", obs.Screenshot)
			assert.Equal(t, "Ex", obs.Metadata["title"])
			require.Len(t, obs.Elements, 1)
			assert.Equal(t, 10, obs.Elements[0].Score)
		})
	}
}

func TestParseObservation_Errors(t *testing.T) {
	_, err := ParseObservation("I could not open the page.")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ParseObservation("{not json}")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJSON)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Sign in", normalizeText("  Sign in\n"))
	assert.Equal(t, "a b", normalizeText("a\nb"))

	long := strings.Repeat("é", 60)
	assert.Equal(t, strings.Repeat("é", 50), normalizeText(long))
}

func TestScore(t *testing.T) {
	tests := []struct {
		tag, typ string
		want     int
	}{
		{"button", "", ScoreAction},
		{"a", "", ScoreAction},
		{"input", "submit", ScoreAction},
		{"div", "submit", ScoreAction},
		{"input", "text", ScoreField},
		{"select", "", ScoreField},
		{"textarea", "", ScoreField},
		{"span", "", ScoreDefault},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, score(tt.tag, tt.typ), "%s[type=%s]", tt.tag, tt.typ)
	}
}

func TestCollectScript(t *testing.T) {
	js := collectScript(Selectors)
	assert.Contains(t, js, `"button, a, input, select, textarea, [role='button'], [role='link'], [onclick], [tabindex]:not([tabindex='-1'])"`)
	assert.True(t, strings.HasSuffix(js, ")()"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", HostOf("https://example.com:8443/path"))
	assert.Equal(t, UnknownHost, HostOf(""))
	assert.Equal(t, UnknownHost, HostOf("about:blank"))
	assert.Equal(t, UnknownHost, HostOf("http://../"))
	assert.Equal(t, UnknownHost, HostOf("http://./x"))
}
