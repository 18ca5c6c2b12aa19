package report

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const reportCSS = `body{font-family:-apple-system,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;color:#1c1917;max-width:1000px;margin:0 auto;padding:1.5rem;line-height:1.55;}
h1{border-bottom:2px solid #d6d3d1;padding-bottom:0.4rem;}
table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.85rem;margin:0.75rem 0;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.5rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
code{background:#f5f5f4;padding:0.1rem 0.3rem;border-radius:3px;font-size:0.85em;}
td:nth-child(5){white-space:nowrap;}
.status-matched{color:#15803d;font-weight:700;}
.status-partial{color:#c2410c;font-weight:700;}
.status-unmatched{color:#b91c1c;font-weight:700;}
hr{border:0;border-top:1px solid #d6d3d1;margin:1.25rem 0;}`

// RenderHTML converts a markdown report into a self-contained HTML
// document with the status cells colored to match the match tiers.
func RenderHTML(markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	body := colorizeStatusCells(content.String())

	return "<!doctype html><html><head><meta charset='utf-8'><title>Bill Validation Report</title>" +
		"<style>" + reportCSS + "</style></head><body>" + body + "</body></html>", nil
}

// colorizeStatusCells wraps the status labels emitted by BuildMarkdown in
// colored spans. The labels are exact values, so plain replacement is safe.
func colorizeStatusCells(body string) string {
	body = strings.ReplaceAll(body, "<td>MATCHED</td>", `<td><span class="status-matched">MATCHED</span></td>`)
	body = strings.ReplaceAll(body, "<td>PARTIAL MATCH</td>", `<td><span class="status-partial">PARTIAL MATCH</span></td>`)
	body = strings.ReplaceAll(body, "<td>NOT MATCHED</td>", `<td><span class="status-unmatched">NOT MATCHED</span></td>`)
	return body
}
