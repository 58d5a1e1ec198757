package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
	"github.com/soulbot/soulbot/backend/internal/model/profile"
)

const (
	NoUserMessage      = "No user messages found."
	NoAssistantMessage = "No assistant replies found."
	fallbackName       = "friend"
)

// Document is a rendered transcript ready for delivery.
type Document struct {
	HTML string
	Text string
}

type exchangeLine struct {
	Speaker string
	Content string
}

type documentView struct {
	Name          string
	LastUser      string
	LastAssistant string
	Notes         string
	Lines         []exchangeLine
}

var documentTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html>
<body style="margin:0;padding:0;font-family:Arial,sans-serif;background:#2b1055;color:#000;">
<div style="max-width:600px;margin:20px auto;background:#ffffff;border:1px solid #ddd;border-radius:8px;padding:20px;">
<div style="text-align:center;font-size:18px;font-weight:bold;margin-bottom:20px;color:#2b1055;">Dear {{.Name}},<br><br>Here is the guidance from your recent conversation with Soul-Bot.</div>
<hr>
<div style="margin-bottom:20px;">
<p><strong>Your last message:</strong> {{.LastUser}}</p>
<p><strong>Soul-Bot's reply:</strong> {{.LastAssistant}}</p>
</div>
{{- if .Notes}}
<hr>
<p style="color:#2b1055;"><strong>Noted concerns:</strong> {{.Notes}}</p>
{{- end}}
{{- if .Lines}}
<hr>
<div style="font-size:16px;font-weight:bold;margin-bottom:10px;color:#2b1055;">Full conversation</div>
{{- range .Lines}}
<p style="margin:5px 0;"><strong>{{.Speaker}}:</strong> {{.Content}}</p>
{{- end}}
{{- end}}
</div>
</body>
</html>
`))

// Render builds the email document for a snapshot. System turns are never included.
func Render(snap chat.Snapshot, p *profile.Profile) (Document, error) {
	view := documentView{
		Name:          fallbackName,
		LastUser:      NoUserMessage,
		LastAssistant: NoAssistantMessage,
	}
	if p != nil {
		if name := strings.TrimSpace(p.Name); name != "" {
			view.Name = name
		}
		view.Notes = strings.TrimSpace(p.Notes)
	}

	if turn, ok := snap.LastByRole(chat.RoleUser); ok {
		view.LastUser = turn.Display()
	}
	if turn, ok := snap.LastByRole(chat.RoleAssistant); ok {
		view.LastAssistant = turn.Display()
	}

	for _, turn := range snap.Turns {
		switch turn.Role {
		case chat.RoleUser:
			view.Lines = append(view.Lines, exchangeLine{Speaker: "You", Content: turn.Display()})
		case chat.RoleAssistant:
			view.Lines = append(view.Lines, exchangeLine{Speaker: "Soul-Bot", Content: turn.Display()})
		}
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return Document{}, fmt.Errorf("render transcript: %w", err)
	}

	return Document{HTML: buf.String(), Text: renderText(view)}, nil
}

// Wrap turns free-form body text into a document, used by the send-email function.
func Wrap(body string) Document {
	escaped := template.HTMLEscapeString(body)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	return Document{
		HTML: `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;">` + escaped + `</body></html>`,
		Text: body,
	}
}

func renderText(view documentView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", view.Name)
	fmt.Fprintf(&b, "Your last message: %s\n", view.LastUser)
	fmt.Fprintf(&b, "Soul-Bot's reply: %s\n", view.LastAssistant)
	if view.Notes != "" {
		fmt.Fprintf(&b, "\nNoted concerns: %s\n", view.Notes)
	}
	if len(view.Lines) > 0 {
		b.WriteString("\nFull conversation\n")
		for _, line := range view.Lines {
			fmt.Fprintf(&b, "%s: %s\n", line.Speaker, line.Content)
		}
	}
	return b.String()
}
