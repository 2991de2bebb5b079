package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/explorer"
	"github.com/kraitsura/flowtree/pkg/model"
)

// TreeSnapshotOptions configures SaveTreeSnapshot.
type TreeSnapshotOptions struct {
	// Path is the output file. Its extension selects the format when Format
	// is empty.
	Path string
	// Format is "svg" or "png".
	Format string
	Rows   []*explorer.Row
	Title  string
}

const (
	snapLineHeight = 20
	snapCharWidth  = 7
	snapPadding    = 16
	snapBadgeWidth = 64
)

// snapshotLine is one laid-out row.
type snapshotLine struct {
	text  string
	typ   model.NodeType
	empty bool
}

// SaveTreeSnapshot writes the sidebar rows as a static image.
func SaveTreeSnapshot(opts TreeSnapshotOptions) error {
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.Path)), ".")
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported snapshot format %q (want svg or png)", format)
	}
	if opts.Path == "" {
		return fmt.Errorf("snapshot path is required")
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	lines := layoutSnapshot(opts.Rows)
	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("flowtree (%d rows)", len(lines))
	}

	switch format {
	case "svg":
		return saveSVG(opts.Path, title, lines)
	default:
		return savePNG(opts.Path, title, lines)
	}
}

// asciiGlyphs swaps toggle glyphs for characters basicfont can draw.
var asciiGlyphs = strings.NewReplacer(
	explorer.GlyphExpanded, "v",
	explorer.GlyphCollapsed, ">",
	explorer.GlyphLeaf, "-",
)

func layoutSnapshot(rows []*explorer.Row) []snapshotLine {
	flat := explorer.Flatten(rows)
	lines := make([]snapshotLine, 0, len(flat))
	for _, l := range flat {
		sl := snapshotLine{
			text:  l.Prefix(explorer.ASCIIConnectors) + asciiGlyphs.Replace(l.Row.PlainText()),
			empty: l.Row.Kind == explorer.RowEmptySlot,
		}
		if l.Row.Node != nil {
			sl.typ = l.Row.Node.Type
		}
		lines = append(lines, sl)
	}
	if len(lines) == 0 {
		lines = append(lines, snapshotLine{text: "No nodes yet", empty: true})
	}
	return lines
}

func snapshotSize(title string, lines []snapshotLine) (int, int) {
	maxChars := len(title)
	for _, l := range lines {
		if n := len(l.text); n > maxChars {
			maxChars = n
		}
	}
	width := snapPadding*3 + maxChars*snapCharWidth + snapBadgeWidth
	height := snapPadding*2 + (len(lines)+2)*snapLineHeight
	return width, height
}

func saveSVG(path, title string, lines []snapshotLine) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	width, height := snapshotSize(title, lines)
	canvas := svg.New(f)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:#111827")
	canvas.Text(snapPadding, snapPadding+snapLineHeight-6, title,
		"font-family:monospace;font-size:14px;font-weight:bold;fill:#e5e7eb")

	badgeX := width - snapPadding - snapBadgeWidth
	for i, l := range lines {
		y := snapPadding + (i+2)*snapLineHeight
		color := "#e5e7eb"
		if l.empty {
			color = "#6b7280"
		}
		canvas.Text(snapPadding, y-6, l.text,
			fmt.Sprintf("font-family:monospace;font-size:12px;white-space:pre;fill:%s", color))
		if l.typ != model.TypeNone {
			st := diagram.StyleFor(l.typ)
			canvas.Roundrect(badgeX, y-snapLineHeight+4, snapBadgeWidth, snapLineHeight-6, 4, 4,
				fmt.Sprintf("fill:%s;stroke:%s", st.Fill, st.Stroke))
			canvas.Text(badgeX+snapBadgeWidth/2, y-6, string(l.typ),
				fmt.Sprintf("font-family:monospace;font-size:10px;text-anchor:middle;fill:%s", st.Color))
		}
	}
	canvas.End()
	return f.Close()
}

func savePNG(path, title string, lines []snapshotLine) error {
	width, height := snapshotSize(title, lines)
	dc := gg.NewContext(width, height)
	dc.SetHexColor("#111827")
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetHexColor("#e5e7eb")
	dc.DrawString(title, snapPadding, float64(snapPadding+snapLineHeight-6))

	badgeX := float64(width - snapPadding - snapBadgeWidth)
	for i, l := range lines {
		y := float64(snapPadding + (i+2)*snapLineHeight)
		if l.empty {
			dc.SetHexColor("#6b7280")
		} else {
			dc.SetHexColor("#e5e7eb")
		}
		dc.DrawString(l.text, snapPadding, y-6)

		if l.typ != model.TypeNone {
			st := diagram.StyleFor(l.typ)
			dc.SetHexColor(st.Fill)
			dc.DrawRoundedRectangle(badgeX, y-snapLineHeight+4, snapBadgeWidth, snapLineHeight-6, 4)
			dc.Fill()
			dc.SetHexColor(st.Color)
			dc.DrawStringAnchored(string(l.typ), badgeX+snapBadgeWidth/2, y-9, 0.5, 0.5)
		}
	}
	return dc.SavePNG(path)
}
