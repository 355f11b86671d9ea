package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/shopscout/internal/doctor"
	"github.com/basket/shopscout/internal/search"
)

type palette struct {
	header lipgloss.Style
	title  lipgloss.Style
	url    lipgloss.Style
	rating lipgloss.Style
	dim    lipgloss.Style
	pass   lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
}

func newPalette(color bool) palette {
	if !color {
		plain := lipgloss.NewStyle()
		return palette{plain, plain, plain, plain, plain, plain, plain, plain}
	}
	return palette{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		title:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		url:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Underline(true),
		rating: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		pass:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		fail:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
}

// renderResults prints platforms and hits in the order returned.
func renderResults(w io.Writer, req search.Request, resp search.SearchResponse, color bool) {
	p := newPalette(color)
	got := make(map[string]bool, len(resp.Platforms))
	for _, block := range resp.Platforms {
		got[block.Platform] = true
		fmt.Fprintln(w, p.header.Render(fmt.Sprintf("%s (%d)", block.Platform, len(block.Results))))
		if len(block.Results) == 0 {
			fmt.Fprintln(w, p.dim.Render("  no results"))
		}
		for i, hit := range block.Results {
			fmt.Fprintf(w, "  %d. %s\n", i+1, p.title.Render(hit.Title))
			if hit.Rating != "" {
				fmt.Fprintf(w, "     %s\n", p.rating.Render(hit.Rating))
			}
			fmt.Fprintf(w, "     %s\n", p.url.Render(hit.URL))
		}
		fmt.Fprintln(w)
	}

	var missing []string
	for _, name := range req.Platforms {
		if !got[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintln(w, p.dim.Render("No data returned for: "+strings.Join(missing, ", ")))
	}
}

func renderDiagnosis(w io.Writer, d doctor.Diagnosis, color bool) {
	p := newPalette(color)
	fmt.Fprintln(w, p.header.Render("ShopScout Doctor Report ("+d.Timestamp.Format("2006-01-02T15:04:05Z07:00")+")"))
	fmt.Fprintf(w, "System: %s/%s (%s) %s\n", d.System.OS, d.System.Arch, d.System.Go, d.System.Version)
	fmt.Fprintln(w, "---")
	for _, res := range d.Results {
		var status string
		switch res.Status {
		case doctor.StatusPass:
			status = p.pass.Render(res.Status)
		case doctor.StatusWarn:
			status = p.warn.Render(res.Status)
		case doctor.StatusFail:
			status = p.fail.Render(res.Status)
		default:
			status = p.dim.Render(res.Status)
		}
		fmt.Fprintf(w, "%s %-15s %s\n", status, res.Name+":", res.Message)
		if res.Detail != "" {
			fmt.Fprintf(w, "     %s\n", p.dim.Render(res.Detail))
		}
	}
}
