package result

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/jung-kurt/gofpdf"

	"taskboard/internal/store"
)

type Lister interface {
	List(ctx context.Context) ([]store.Task, error)
}

type Exporter struct{ src Lister }

func NewExporter(src Lister) *Exporter { return &Exporter{src: src} }

// Formats maps each supported export format to its content type.
var Formats = map[string]string{
	"json": "application/json",
	"csv":  "text/csv; charset=utf-8",
	"pdf":  "application/pdf",
}

type UnknownFormatError string

func (e UnknownFormatError) Error() string { return fmt.Sprintf("unknown format %s", string(e)) }

func (e *Exporter) Export(ctx context.Context, format string) ([]byte, error) {
	format = strings.ToLower(format)
	if _, ok := Formats[format]; !ok {
		return nil, UnknownFormatError(format)
	}
	all, err := e.src.List(ctx)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return sonic.ConfigStd.MarshalIndent(all, "", "  ")
	case "csv":
		var b bytes.Buffer
		w := csv.NewWriter(&b)
		_ = w.Write([]string{"id", "title", "done", "createdAt"})
		for _, t := range all {
			_ = w.Write([]string{t.ID, t.Title, fmt.Sprint(t.Done), t.CreatedAt})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	default:
		pdf := gofpdf.New("P", "mm", "A4", "")
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 14)
		pdf.Cell(40, 10, "Tasks")
		pdf.Ln(12)
		pdf.SetFont("Arial", "", 10)
		tr := pdf.UnicodeTranslatorFromDescriptor("")
		for _, t := range all {
			mark := "[ ]"
			if t.Done {
				mark = "[x]"
			}
			line := fmt.Sprintf("%s %s  (%s)", mark, tr(t.Title), t.CreatedAt)
			pdf.MultiCell(0, 6, line, "0", "L", false)
		}
		var buf bytes.Buffer
		if err := pdf.Output(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
