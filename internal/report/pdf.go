// Package report renders a stored quiz attempt as a PDF document.
package report

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"emsi-preparator/internal/domain"
	"github.com/go-pdf/fpdf"
)

const (
	title      = "Quiz Report"
	lineHeight = 6.0
	imageSize  = 24.0
	cellPad    = 1.5
)

type rgb struct{ r, g, b int }

var (
	headerFill = rgb{46, 204, 113}
	rightFill  = rgb{198, 239, 206}
	wrongFill  = rgb{255, 199, 206}
	ruleColor  = rgb{200, 200, 200}
)

// Options controls optional decorations of the document.
type Options struct {
	// LogoPath is drawn top right when it points to a readable PNG or JPEG.
	LogoPath string
	// AssetsDir resolves relative avatar references.
	AssetsDir string
	// Uncompressed disables stream compression, mostly for tests.
	Uncompressed bool
}

// Render writes the PDF for r to w.
func Render(w io.Writer, r domain.AttemptReport, opts Options) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(!opts.Uncompressed)
	pdf.SetTitle(title, true)
	pdf.SetAutoPageBreak(false, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	left, top, right, _ := pdf.GetMargins()
	contentW := pageW - left - right

	placeImage(pdf, avatarPath(r.User.AvatarRef, opts.AssetsDir), left, top)
	placeImage(pdf, opts.LogoPath, pageW-right-imageSize, top)

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(left, top+imageSize/2-5)
	pdf.CellFormat(contentW, 10, title, "", 1, "C", false, 0, "")
	pdf.SetY(top + imageSize + 6)

	writeInfo(pdf, tr, r, left, contentW)
	if pdf.Err() {
		return fmt.Errorf("render report: %w", pdf.Error())
	}

	y := pdf.GetY() + 3
	setDraw(pdf, ruleColor)
	pdf.Line(left, y, left+contentW, y)
	pdf.SetY(y + 5)

	writeTable(pdf, tr, r.Lines, left, contentW)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Filename is the suggested download name for r.
func Filename(r domain.AttemptReport) string {
	topic := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		}
		return '_'
	}, r.Topic)
	if topic == "" {
		topic = "quiz"
	}
	return fmt.Sprintf("quiz_report_%s_%s.pdf", topic, r.AttemptID)
}

func writeInfo(pdf *fpdf.Fpdf, tr func(string) string, r domain.AttemptReport, left, width float64) {
	leftCol := [][2]string{
		{"Name", r.User.FullName},
		{"Email", r.User.Email},
	}
	if r.User.Phone != "" {
		leftCol = append(leftCol, [2]string{"Phone", r.User.Phone})
	}
	rightCol := [][2]string{
		{"Topic", r.Topic},
		{"Date", r.Date},
		{"Score", strconv.Itoa(r.Score) + "%"},
	}

	half := width / 2
	startY := pdf.GetY()
	rows := len(leftCol)
	if len(rightCol) > rows {
		rows = len(rightCol)
	}
	for i := 0; i < rows; i++ {
		y := startY + float64(i)*lineHeight
		if i < len(leftCol) {
			infoCell(pdf, tr, left, y, half, leftCol[i])
		}
		if i < len(rightCol) {
			infoCell(pdf, tr, left+half, y, half, rightCol[i])
		}
	}
	pdf.SetY(startY + float64(rows)*lineHeight)
}

func infoCell(pdf *fpdf.Fpdf, tr func(string) string, x, y, w float64, kv [2]string) {
	pdf.SetXY(x, y)
	pdf.SetFont("Helvetica", "B", 11)
	label := kv[0] + ": "
	lw := pdf.GetStringWidth(label)
	pdf.CellFormat(lw, lineHeight, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(w-lw, lineHeight, tr(kv[1]), "", 0, "L", false, 0, "")
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, lines []domain.ReportLine, left, width float64) {
	widths := []float64{width * 0.5, width * 0.25, width * 0.25}
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	limit := pageH - bottom

	header := func() {
		pdf.SetFont("Helvetica", "B", 11)
		setFill(pdf, headerFill)
		pdf.SetTextColor(255, 255, 255)
		setDraw(pdf, ruleColor)
		pdf.SetX(left)
		for i, h := range []string{"Question", "Your Answer", "Correct Answer"} {
			pdf.CellFormat(widths[i], lineHeight+2, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 10)
	}
	header()

	for _, line := range lines {
		cells := []string{tr(line.Question), tr(line.YourAnswer), tr(line.CorrectAnswer)}
		wrapped := make([][][]byte, len(cells))
		rowLines := 1
		for i, c := range cells {
			wrapped[i] = pdf.SplitLines([]byte(c), widths[i]-2*cellPad)
			if n := len(wrapped[i]); n > rowLines {
				rowLines = n
			}
		}
		rowH := float64(rowLines)*lineHeight + 2*cellPad

		if pdf.GetY()+rowH > limit {
			pdf.AddPage()
			header()
		}

		y := pdf.GetY()
		x := left
		for i := range cells {
			fill := false
			if i == 1 {
				if line.Correct() {
					setFill(pdf, rightFill)
				} else {
					setFill(pdf, wrongFill)
				}
				fill = true
			}
			style := "D"
			if fill {
				style = "FD"
			}
			pdf.Rect(x, y, widths[i], rowH, style)
			for j, text := range wrapped[i] {
				pdf.SetXY(x+cellPad, y+cellPad+float64(j)*lineHeight)
				pdf.CellFormat(widths[i]-2*cellPad, lineHeight, string(text), "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(left, y+rowH)
	}
}

// avatarPath resolves an avatar reference to a local file. Remote avatars
// are not fetched.
func avatarPath(ref, assetsDir string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ""
	}
	if filepath.IsAbs(ref) || assetsDir == "" {
		return ref
	}
	return filepath.Join(assetsDir, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
}

// placeImage draws the image at path when fpdf can parse it. Images fpdf
// rejects (interlaced PNGs, for one) are skipped and the error is cleared so
// the rest of the document still renders.
func placeImage(pdf *fpdf.Fpdf, path string, x, y float64) {
	path, kind, ok := usableImage(path)
	if !ok {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	opts := fpdf.ImageOptions{ImageType: kind, ReadDpi: true}
	pdf.RegisterImageOptionsReader(path, opts, f)
	if pdf.Err() {
		pdf.ClearError()
		return
	}
	pdf.ImageOptions(path, x, y, imageSize, imageSize, false, opts, 0, "")
}

// usableImage reports the fpdf image type of path when it is a decodable
// PNG or JPEG whose format matches its extension.
func usableImage(path string) (string, string, bool) {
	if path == "" {
		return "", "", false
	}
	var want string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		want = "png"
	case ".jpg", ".jpeg":
		want = "jpeg"
	default:
		return "", "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", false
	}
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	if err != nil || format != want {
		return "", "", false
	}
	if want == "png" {
		return path, "PNG", true
	}
	return path, "JPG", true
}

func setFill(pdf *fpdf.Fpdf, c rgb) { pdf.SetFillColor(c.r, c.g, c.b) }

func setDraw(pdf *fpdf.Fpdf, c rgb) { pdf.SetDrawColor(c.r, c.g, c.b) }
