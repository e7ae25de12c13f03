package report

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emsi-preparator/internal/domain"
)

func sampleReport(lines int) domain.AttemptReport {
	r := domain.AttemptReport{
		AttemptID: "a1",
		User:      domain.UserIdentity{ID: "u1", FullName: "Sara B", Email: "sara@emsi.ma", Phone: "0600000000"},
		Topic:     "C++",
		Date:      "2024-12-01",
		Score:     67,
	}
	for i := 0; i < lines; i++ {
		your := "A"
		if i%2 == 0 {
			your = domain.NotAvailable
		}
		r.Lines = append(r.Lines, domain.ReportLine{
			Question:      fmt.Sprintf("Question %d: which keyword declares a constant that cannot change after initialisation?", i+1),
			YourAnswer:    your,
			CorrectAnswer: "A",
		})
	}
	return r
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 46, G: 204, B: 113, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func TestRenderProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(3), Options{Uncompressed: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("expected PDF header, got %q", out[:8])
	}
	for _, want := range []string{"Quiz Report", "Your Answer", "Sara B", "67%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in document", want)
		}
	}
}

func TestRenderBreaksLongTablesAcrossPages(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(60), Options{Uncompressed: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if pages := strings.Count(out, "/Type /Page") - strings.Count(out, "/Type /Pages"); pages < 2 {
		t.Fatalf("expected several pages, got %d", pages)
	}
}

func TestRenderWithImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "logo.png"))
	if err := os.MkdirAll(filepath.Join(dir, "avatars"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePNG(t, filepath.Join(dir, "avatars", "sara.png"))

	r := sampleReport(1)
	r.User.AvatarRef = "/avatars/sara.png"
	var buf bytes.Buffer
	err := Render(&buf, r, Options{LogoPath: filepath.Join(dir, "logo.png"), AssetsDir: dir, Uncompressed: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "/Subtype /Image") {
		t.Fatalf("expected embedded images")
	}
}

// writeInterlacedPNG writes a PNG whose header announces Adam7 interlacing.
// The image package accepts the header; fpdf refuses interlaced images.
func writeInterlacedPNG(t *testing.T, path string) {
	t.Helper()
	writePNG(t, path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read png: %v", err)
	}
	// signature(8) length(4) "IHDR"(4) then 13 data bytes; interlace is the last
	const ihdrData = 16
	data[ihdrData+12] = 1
	binary.BigEndian.PutUint32(data[ihdrData+13:], crc32.ChecksumIEEE(data[ihdrData-4:ihdrData+13]))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func TestRenderSkipsImagesThePdfLibraryRejects(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "logo.png")
	writeInterlacedPNG(t, logo)
	if _, _, ok := usableImage(logo); !ok {
		t.Fatalf("expected the interlaced header to decode")
	}

	var buf bytes.Buffer
	if err := Render(&buf, sampleReport(3), Options{LogoPath: logo, Uncompressed: true}); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Your Answer") {
		t.Fatalf("expected the table to be rendered")
	}
	if strings.Contains(out, "/Subtype /Image") {
		t.Fatalf("expected the rejected logo to be left out")
	}
}

func TestUsableImageRejectsMismatchedFiles(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "logo.jpg")
	writePNG(t, fake)
	if _, _, ok := usableImage(fake); ok {
		t.Fatalf("expected png bytes behind .jpg to be rejected")
	}
	if _, _, ok := usableImage(filepath.Join(dir, "missing.png")); ok {
		t.Fatalf("expected missing file to be rejected")
	}
	if got := avatarPath("https://cdn.example/a.png", dir); got != "" {
		t.Fatalf("expected remote avatar to be skipped, got %q", got)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(sampleReport(0)); got != "quiz_report_C___a1.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}
