package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/exifmeta"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// resolveFormat picks table output for terminals and json for pipes unless a
// format was requested explicitly.
func resolveFormat(requested string, out io.Writer) (string, error) {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "":
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return formatTable, nil
		}
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	case formatJSON:
		return formatJSON, nil
	case formatYAML, "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q", requested)
	}
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		// Round-trip through JSON so yaml keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		renderTable(tw, v)
		return tw.Flush()
	}
}

func renderTable(w io.Writer, v any) {
	switch r := v.(type) {
	case *domain.IngestionReport:
		fmt.Fprintf(w, "SESSION\t%s\n", r.SessionID)
		fmt.Fprintf(w, "ROOT\t%s\n", r.Root)
		fmt.Fprintf(w, "FOUND\t%d\n", r.TotalFound)
		fmt.Fprintf(w, "NEW\t%d\n", r.NewImported)
		fmt.Fprintf(w, "DUPLICATES\t%d\n", r.Duplicates)
		fmt.Fprintf(w, "WITH RAW\t%d\n", r.WithCompanion)
		fmt.Fprintf(w, "DURATION\t%s\n", r.Duration)
		renderItemErrors(w, r.Errors)
	case *domain.ScanPreview:
		fmt.Fprintf(w, "PATH\t%s\n", r.Path)
		fmt.Fprintf(w, "VALID\t%t\n", r.Valid)
		fmt.Fprintf(w, "JPG\t%d\n", r.JPGCount)
		fmt.Fprintf(w, "RAW\t%d\n", r.EstimatedCompanionCount)
	case *domain.ClassificationReport:
		fmt.Fprintf(w, "ID\tSTATUS\tCATEGORY\tATTEMPTS\tDETAIL\n")
		for _, d := range r.Details {
			status, detail := "ok", d.Caption
			if !d.Success {
				status, detail = d.ErrorKind, d.Error
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", d.PhotoID, status, d.Category, d.Attempts, detail)
		}
		fmt.Fprintf(w, "\n%s\n", r.Message)
	case *domain.StatsReport:
		if r.NoData {
			fmt.Fprintln(w, "no photos in range")
			return
		}
		fmt.Fprintf(w, "TOTAL\t%d\nWITH RAW\t%d\nSELECTED\t%d\n", r.Total, r.WithCompanion, r.Selected)
		renderBuckets(w, "CATEGORY", r.Categories)
		renderBuckets(w, "CAMERA", r.Cameras)
		renderBuckets(w, "FOCAL LENGTH", r.FocalLengths)
		renderBuckets(w, "ISO", r.ISOs)
		renderBuckets(w, "APERTURE", r.Apertures)
	case *domain.QuickStats:
		fmt.Fprintf(w, "TOTAL\t%d\nWITH RAW\t%d\nSELECTED\t%d\n", r.Total, r.WithCompanion, r.Selected)
		fmt.Fprintf(w, "CLASSIFIED\t%d\nUNCLASSIFIED\t%d\n", r.Classified, r.Unclassified)
	case *domain.Summary:
		if r.NoData {
			fmt.Fprintln(w, r.Message)
			return
		}
		renderTable(w, r.Stats)
		fmt.Fprintf(w, "\n%s\n", r.AIText)
	case *domain.OrganizeReport:
		fmt.Fprintf(w, "LIBRARY\t%s\n", r.LibraryRoot)
		fmt.Fprintf(w, "TOTAL\t%d\nSUCCESS\t%d\nFAILED\t%d\n", r.Total, r.Success, r.Failed)
		fmt.Fprintf(w, "JPG COPIED\t%d\nRAW COPIED\t%d\n", r.JPGCopied, r.RAWCopied)
		renderItemErrors(w, r.Errors)
	case *domain.ExportReport:
		fmt.Fprintf(w, "PATH\t%s\n", r.Path)
		fmt.Fprintf(w, "EXPORTED\t%d\nJPG\t%d\nRAW\t%d\n", r.ExportedCount, r.JPGCount, r.RAWCount)
		renderItemErrors(w, r.Errors)
	case []domain.Photo:
		fmt.Fprintf(w, "ID\tFILE\tCATEGORY\tSHUTTER\tAPERTURE\tSELECTED\n")
		for _, p := range r {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n", p.ID, p.FileName, p.Category,
				exifmeta.FormatShutter(p.ShutterSeconds), exifmeta.FormatAperture(p.Aperture), p.IsSelected)
		}
	default:
		fmt.Fprintf(w, "%+v\n", v)
	}
}

func renderBuckets(w io.Writer, title string, buckets []domain.Bucket) {
	if len(buckets) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\tCOUNT\n", title)
	for _, b := range buckets {
		fmt.Fprintf(w, "%s\t%d\n", b.Label, b.Count)
	}
}

func renderItemErrors(w io.Writer, errs []domain.ItemError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\nITEM\tKIND\tERROR\n")
	for _, e := range errs {
		item := e.Path
		if item == "" {
			item = fmt.Sprintf("photo %d", e.PhotoID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", item, e.Kind, e.Error)
	}
}
