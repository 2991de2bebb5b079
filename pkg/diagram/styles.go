package diagram

import (
	"fmt"

	"github.com/kraitsura/flowtree/pkg/model"
)

// Style is a mermaid node style directive.
type Style struct {
	Fill   string
	Color  string
	Stroke string
}

func (s Style) String() string {
	return fmt.Sprintf("fill:%s,color:%s,stroke:%s", s.Fill, s.Color, s.Stroke)
}

var (
	inputStyle   = Style{Fill: "#1e40af", Color: "#dbeafe", Stroke: "#1e3a8a"}
	processStyle = Style{Fill: "#92400e", Color: "#fef3c7", Stroke: "#78350f"}
	outputStyle  = Style{Fill: "#166534", Color: "#dcfce7", Stroke: "#14532d"}
	// DefaultStyle applies to untyped records and unknown types.
	DefaultStyle = Style{Fill: "#374151", Color: "#f3f4f6", Stroke: "#1f2937"}
)

// StyleFor maps a node type to its style. It never fails.
func StyleFor(t model.NodeType) Style {
	switch t {
	case model.TypeInput:
		return inputStyle
	case model.TypeProcess:
		return processStyle
	case model.TypeOutput:
		return outputStyle
	default:
		return DefaultStyle
	}
}
