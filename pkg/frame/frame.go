package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies which payload a Frame carries
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindThinking
	KindSources
	KindImage
	KindSuggestions
	KindRoutedModel
	KindGeneratingImage
	KindError
	KindDone
)

// String returns the string representation of the frame kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindThinking:
		return "thinking"
	case KindSources:
		return "sources"
	case KindImage:
		return "image"
	case KindSuggestions:
		return "suggestions"
	case KindRoutedModel:
		return "routedModel"
	case KindGeneratingImage:
		return "generatingImage"
	case KindError:
		return "error"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Source is one citation entry in a SourceList frame
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Image is a completed binary artifact produced mid-stream.
// Data is base64-encoded on the wire.
type Image struct {
	MimeType    string  `json:"mimeType"`
	Data        string  `json:"data"`
	AspectRatio float64 `json:"aspectRatio,omitempty"`
}

// Frame is one typed unit of the streamed event protocol. Exactly one
// payload field is populated per frame; the populated field is the tag
// the decoder dispatches on.
type Frame struct {
	Text            *string  `json:"text,omitempty"`
	Thinking        *string  `json:"thinking,omitempty"`
	Sources         []Source `json:"sources,omitempty"`
	Image           *Image   `json:"image,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	RoutedModel     *string  `json:"routedModel,omitempty"`
	GeneratingImage bool     `json:"generatingImage,omitempty"`
	Error           *string  `json:"error,omitempty"`
	Done            bool     `json:"done,omitempty"`
}

// Constructors, one per frame kind

func TextDelta(text string) Frame {
	return Frame{Text: &text}
}

func ThinkingDelta(text string) Frame {
	return Frame{Thinking: &text}
}

func SourceList(sources []Source) Frame {
	if sources == nil {
		sources = []Source{}
	}
	return Frame{Sources: sources}
}

func ImageArtifact(img Image) Frame {
	return Frame{Image: &img}
}

func SuggestionList(suggestions []string) Frame {
	if suggestions == nil {
		suggestions = []string{}
	}
	return Frame{Suggestions: suggestions}
}

func RoutedModelInfo(model string) Frame {
	return Frame{RoutedModel: &model}
}

func GeneratingImageMarker() Frame {
	return Frame{GeneratingImage: true}
}

func ErrorFrame(message string) Frame {
	return Frame{Error: &message}
}

func DoneFrame() Frame {
	return Frame{Done: true}
}

// Kind classifies the frame by its populated payload field. Error and
// Done are checked first so a malformed producer cannot smuggle content
// past a terminal marker.
func (f Frame) Kind() Kind {
	switch {
	case f.Error != nil:
		return KindError
	case f.Done:
		return KindDone
	case f.Text != nil:
		return KindText
	case f.Thinking != nil:
		return KindThinking
	case f.Sources != nil:
		return KindSources
	case f.Image != nil:
		return KindImage
	case f.Suggestions != nil:
		return KindSuggestions
	case f.RoutedModel != nil:
		return KindRoutedModel
	case f.GeneratingImage:
		return KindGeneratingImage
	default:
		return KindUnknown
	}
}

// Terminal reports whether no further frames follow this one
func (f Frame) Terminal() bool {
	k := f.Kind()
	return k == KindError || k == KindDone
}

// ssePrefix and sseSuffix delimit one event on the push channel:
// "data: <JSON>\n\n".
const (
	ssePrefix = "data: "
	sseSuffix = "\n\n"
)

// MarshalSSE encodes the frame as one complete SSE event
func (f Frame) MarshalSSE() ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(ssePrefix) + len(payload) + len(sseSuffix))
	buf.WriteString(ssePrefix)
	buf.Write(payload)
	buf.WriteString(sseSuffix)
	return buf.Bytes(), nil
}

// DecodeLine parses one complete line from the wire. The returned bool
// is false for lines that are not frame-bearing (blank lines, comments,
// other SSE fields); a malformed JSON payload returns an error so the
// caller can log and skip it.
func DecodeLine(line []byte) (Frame, bool, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(line)) == 0 {
		return Frame{}, false, nil
	}

	payload, found := bytes.CutPrefix(line, []byte("data:"))
	if !found {
		return Frame{}, false, nil
	}
	payload = bytes.TrimSpace(payload)

	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, false, fmt.Errorf("failed to parse frame line: %w", err)
	}
	return f, true, nil
}
