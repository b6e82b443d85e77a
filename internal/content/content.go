// Package content renders product descriptions written in markdown into sanitized HTML.
package content

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts markdown to HTML and strips anything the UGC policy does not allow.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: newDescriptionPolicy(),
	}
}

func newDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

// Render returns sanitized HTML for src. Blank input yields an empty result.
func (r *Renderer) Render(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Plain strips all markup, for meta descriptions. The result is clipped to max runes when max > 0.
func (r *Renderer) Plain(src string, max int) string {
	text := strings.Join(strings.Fields(bluemonday.StrictPolicy().Sanitize(src)), " ")
	text = strings.NewReplacer("*", "", "#", "", "_", "", "`", "").Replace(text)
	if max > 0 {
		runes := []rune(text)
		if len(runes) > max {
			return strings.TrimSpace(string(runes[:max-1])) + "…"
		}
	}
	return text
}
