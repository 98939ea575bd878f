package mailer

import (
	"fmt"
	"html"
	"strings"

	"council-digest/digest"
	"council-digest/summarizer"
)

// categoryHeadings maps item categories to their section headings.
var categoryHeadings = map[string]string{
	"official-hearing": "Hearings & meetings (official)",
	"video":            "Videos & livestream replays",
	"press-mention":    "News mentions",
	"other":            "Other updates",
}

func heading(category string) string {
	if h, ok := categoryHeadings[category]; ok {
		return h
	}
	return category
}

// renderHTML builds the HTML body: optional cited brief, then category
// sections, then the unsubscribe footer.
func renderHTML(subject string, payload *digest.Payload, summary *summarizer.Summary, unsubscribeURL string) string {
	var sb strings.Builder

	sb.WriteString(`<!DOCTYPE html><html><head><style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 700px; margin: 0 auto; padding: 20px; color: #333; }
h1 { color: #1a1a2e; border-bottom: 2px solid #2c5f8a; padding-bottom: 10px; }
h2 { color: #16213e; }
.brief { background: #f0f0f0; padding: 15px; border-radius: 8px; margin-bottom: 20px; }
.item { margin-bottom: 12px; }
.meta { color: #666; font-size: 0.9em; }
.footer { margin-top: 30px; color: #888; font-size: 0.85em; }
</style></head><body>`)

	sb.WriteString(fmt.Sprintf("<h1>%s</h1>", html.EscapeString(subject)))
	sb.WriteString(fmt.Sprintf("<p class=\"meta\">Covering %s to %s</p>",
		payload.Window.Start.Format("January 2, 2006"),
		payload.Window.End.Format("January 2, 2006")))

	if summary != nil && len(summary.Bullets) > 0 {
		sb.WriteString(`<div class="brief"><h2>This week in brief</h2><ul>`)
		for _, b := range summary.Bullets {
			sb.WriteString("<li>")
			sb.WriteString(html.EscapeString(b.Text))
			for _, n := range b.Sources {
				if src := citedSource(summary, n); src != nil {
					sb.WriteString(fmt.Sprintf(` <a href="%s">[%d]</a>`, html.EscapeString(src.URL), n))
				}
			}
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul></div>")
	}

	if len(payload.Highlights) > 0 {
		sb.WriteString("<h2>Highlights</h2>")
		for _, item := range payload.Highlights {
			sb.WriteString(`<div class="item">`)
			sb.WriteString(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(item.URL), html.EscapeString(item.Title)))
			sb.WriteString(fmt.Sprintf(` <span class="meta">(%s)</span>`, html.EscapeString(item.SourceID)))
			sb.WriteString("</div>")
		}
	}

	for _, group := range payload.Groups {
		sb.WriteString(fmt.Sprintf("<h2>%s</h2>", html.EscapeString(heading(group.Category))))
		for _, item := range group.Items {
			sb.WriteString(`<div class="item">`)
			sb.WriteString(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(item.URL), html.EscapeString(item.Title)))
			sb.WriteString(fmt.Sprintf(` <span class="meta">(%s)</span>`, html.EscapeString(item.SourceID)))
			if item.Excerpt != "" {
				sb.WriteString(fmt.Sprintf("<br>%s", html.EscapeString(item.Excerpt)))
			}
			sb.WriteString("</div>")
		}
	}

	sb.WriteString(`<div class="footer">`)
	if unsubscribeURL != "" {
		sb.WriteString(fmt.Sprintf(`<a href="%s">Unsubscribe</a>`, html.EscapeString(unsubscribeURL)))
	}
	sb.WriteString("</div></body></html>")

	return sb.String()
}

// renderText builds the plain-text alternative.
func renderText(subject string, payload *digest.Payload, summary *summarizer.Summary, unsubscribeURL string) string {
	var sb strings.Builder

	sb.WriteString(subject)
	sb.WriteString("\n\n")

	if summary != nil && len(summary.Bullets) > 0 {
		sb.WriteString("This week in brief\n")
		for _, b := range summary.Bullets {
			sb.WriteString("- " + b.Text)
			for _, n := range b.Sources {
				sb.WriteString(fmt.Sprintf(" [%d]", n))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		for _, src := range summary.Sources {
			sb.WriteString(fmt.Sprintf("[%d] %s\n", src.N, src.URL))
		}
		sb.WriteString("\n")
	}

	if len(payload.Highlights) > 0 {
		sb.WriteString("Highlights\n")
		for _, item := range payload.Highlights {
			sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", item.Title, item.SourceID, item.URL))
		}
		sb.WriteString("\n")
	}

	for _, group := range payload.Groups {
		sb.WriteString(heading(group.Category) + "\n")
		for _, item := range group.Items {
			sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", item.Title, item.SourceID, item.URL))
		}
		sb.WriteString("\n")
	}

	if unsubscribeURL != "" {
		sb.WriteString("Unsubscribe: " + unsubscribeURL + "\n")
	}

	return sb.String()
}

func citedSource(summary *summarizer.Summary, n int) *summarizer.CitedSource {
	for i := range summary.Sources {
		if summary.Sources[i].N == n {
			return &summary.Sources[i]
		}
	}
	return nil
}
