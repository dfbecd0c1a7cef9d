// Package cliutil provides the tracelisten CLI's table rendering and
// interactive prompts, adapted from the teacher's output/prompt helpers for
// the fan-out and hook-authoring workflows.
package cliutil

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a formatted table to w.
func PrintTable(w io.Writer, data TableRenderer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range data.Rows() {
		table.Append(row)
	}
	table.Render()
}

// FanoutReport renders one row per --connect sub-session outcome.
type FanoutReport struct {
	rows [][]string
}

// NewFanoutReport creates an empty report.
func NewFanoutReport() *FanoutReport {
	return &FanoutReport{}
}

// Add records one sub-session's host, negotiated ports, and status.
func (r *FanoutReport) Add(host, ports, status string) {
	r.rows = append(r.rows, []string{host, ports, status})
}

// Headers implements TableRenderer.
func (r *FanoutReport) Headers() []string { return []string{"Host", "Ports", "Status"} }

// Rows implements TableRenderer.
func (r *FanoutReport) Rows() [][]string { return r.rows }
