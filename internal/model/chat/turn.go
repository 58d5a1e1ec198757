package chat

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImagePlaceholder replaces image parts wherever a transcript is flattened to text.
const ImagePlaceholder = "[image]"

// PartKind distinguishes text parts from image references.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// ImageRef is an opaque reference to a captured frame. Data is never serialized.
type ImageRef struct {
	ID       string `json:"id"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"-"`
}

// DataURL encodes the image inline for providers that only accept URLs.
func (r ImageRef) DataURL() string {
	mime := r.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// Part is one element of a turn's content.
type Part struct {
	Kind  PartKind
	Text  string
	Image *ImageRef
}

// TextPart wraps plain text.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImagePart wraps an image reference.
func ImagePart(ref ImageRef) Part {
	return Part{Kind: PartImage, Image: &ref}
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Turn is one utterance in a conversation.
type Turn struct {
	Role      Role
	Parts     []Part
	Calls     []FunctionCall
	CreatedAt time.Time
}

// NewTurn builds an unstamped turn; the transcript store sets CreatedAt on append.
func NewTurn(role Role, parts ...Part) Turn {
	return Turn{Role: role, Parts: parts}
}

// Text joins the text parts, ignoring images.
func (t Turn) Text() string {
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.Kind == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// Display flattens every part into one string, rendering images as ImagePlaceholder.
// A turn that only carries function calls is shown as "[function: name, ...]".
func (t Turn) Display() string {
	out := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		switch p.Kind {
		case PartImage:
			out = append(out, ImagePlaceholder)
		default:
			if p.Text != "" {
				out = append(out, p.Text)
			}
		}
	}
	if len(out) == 0 && len(t.Calls) > 0 {
		names := make([]string, 0, len(t.Calls))
		for _, call := range t.Calls {
			names = append(names, call.Name)
		}
		return "[function: " + strings.Join(names, ", ") + "]"
	}
	return strings.Join(out, " ")
}

// Images returns the image references carried by the turn.
func (t Turn) Images() []ImageRef {
	var refs []ImageRef
	for _, p := range t.Parts {
		if p.Kind == PartImage && p.Image != nil {
			refs = append(refs, *p.Image)
		}
	}
	return refs
}

// Clone returns a copy that shares no slices with t.
func (t Turn) Clone() Turn {
	c := t
	if t.Parts != nil {
		c.Parts = make([]Part, len(t.Parts))
		for i, p := range t.Parts {
			if p.Image != nil {
				img := *p.Image
				if img.Data != nil {
					img.Data = append([]byte(nil), img.Data...)
				}
				p.Image = &img
			}
			c.Parts[i] = p
		}
	}
	if t.Calls != nil {
		c.Calls = make([]FunctionCall, len(t.Calls))
		for i, call := range t.Calls {
			if call.Arguments != nil {
				call.Arguments = append(json.RawMessage(nil), call.Arguments...)
			}
			c.Calls[i] = call
		}
	}
	return c
}
