package service

import (
	"fmt"
	"html"
	"strings"

	"clubportal/internal/model"
)

// renderNotification builds the per-recipient subject and bodies for an
// ad-hoc notification email. Urgent notifications carry the [URGENT]
// subject prefix; run_specific ones embed the run details.
func renderNotification(n *model.Notification, run *model.Run, m model.Member) (subject, htmlBody, textBody string) {
	subject = n.Title
	if n.Urgent() {
		subject = "[URGENT] " + subject
	}

	var hb, tb strings.Builder

	fmt.Fprintf(&hb, "<p>Hi %s,</p>", html.EscapeString(m.Name))
	fmt.Fprintf(&hb, "<h2>%s</h2>", html.EscapeString(n.Title))
	fmt.Fprintf(&hb, "<p>%s</p>", html.EscapeString(n.Message))

	fmt.Fprintf(&tb, "Hi %s,\n\n%s\n\n%s\n", m.Name, n.Title, n.Message)

	if n.Type == model.TypeRunSpecific && run != nil {
		date := run.RunDate.Format("Monday 2 January 2006")
		fmt.Fprintf(&hb, "<p><strong>%s</strong><br>%s at %s</p>",
			html.EscapeString(run.Title), date, html.EscapeString(run.StartTime))
		fmt.Fprintf(&tb, "\n%s\n%s at %s\n", run.Title, date, run.StartTime)
	}

	hb.WriteString("<p>See the club portal for details.</p>")
	tb.WriteString("\nSee the club portal for details.\n")

	return subject, hb.String(), tb.String()
}

// renderDigest builds the weekly LIRF coverage digest. The subject states
// whether any runs in the next 7 days still need a leader.
func renderDigest(gaps []model.CoverageGap, m model.Member) (subject, htmlBody, textBody string) {
	if len(gaps) == 0 {
		subject = "LIRF cover: all runs covered for the next 7 days"
	} else {
		subject = fmt.Sprintf("LIRF cover needed: %d run(s) in the next 7 days", len(gaps))
	}

	var hb, tb strings.Builder

	fmt.Fprintf(&hb, "<p>Hi %s,</p>", html.EscapeString(m.Name))
	fmt.Fprintf(&tb, "Hi %s,\n\n", m.Name)

	if len(gaps) == 0 {
		hb.WriteString("<p>Every run in the next 7 days has its leader slots filled. Nothing to do this week.</p>")
		tb.WriteString("Every run in the next 7 days has its leader slots filled. Nothing to do this week.\n")
	} else {
		hb.WriteString("<p>The following runs still need LIRF cover:</p><ul>")
		tb.WriteString("The following runs still need LIRF cover:\n\n")
		for _, g := range gaps {
			date := g.RunDate.Format("Mon 2 Jan")
			fmt.Fprintf(&hb, "<li><strong>%s</strong>, %s at %s: %d of %d slots open</li>",
				html.EscapeString(g.Title), date, html.EscapeString(g.StartTime), g.Vacancies(), g.Required)
			fmt.Fprintf(&tb, "- %s, %s at %s: %d of %d slots open\n",
				g.Title, date, g.StartTime, g.Vacancies(), g.Required)
		}
		hb.WriteString("</ul><p>Please pick up a slot on the portal if you can.</p>")
		tb.WriteString("\nPlease pick up a slot on the portal if you can.\n")
	}

	return subject, hb.String(), tb.String()
}
