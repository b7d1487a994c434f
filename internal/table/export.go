package table

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// UnknownGroup labels rows whose primary value is missing
	UnknownGroup = "Unknown"

	// DocumentContentType is served for the exported word-processor file
	DocumentContentType = "application/msword"
)

// ErrNoData is returned when exporting without a loaded dataset
var ErrNoData = errors.New("no data to export")

// LayoutRow is one body row of an exported table.
// Span is the number of rows the primary cell covers; 0 means the cell is
// covered by an earlier row and is not rendered. Values holds the remaining columns.
type LayoutRow struct {
	Primary string
	Span    int
	Values  []string
}

// TableLayout is the export-ready shape of a dataset
type TableLayout struct {
	Headers []string
	Labels  []string
	Primary bool
	Rows    []LayoutRow
}

// Layout groups records by the primary column when there is one, keeping groups in
// order of first appearance and rows in their original order within a group.
func Layout(d *Dataset) TableLayout {
	headers := d.Headers()
	layout := TableLayout{
		Headers: headers,
		Labels:  HeaderLabels(headers),
	}

	primary, ok := PrimaryColumn(headers)
	if !ok {
		for _, rec := range d.Records() {
			layout.Rows = append(layout.Rows, LayoutRow{Values: valuesOf(rec, headers)})
		}
		return layout
	}
	layout.Primary = true

	var order []string
	groups := make(map[string][]Record)
	for _, rec := range d.Records() {
		key := rec.Value(primary)
		if key == "" {
			key = UnknownGroup
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	for _, key := range order {
		members := groups[key]
		for i, rec := range members {
			row := LayoutRow{Values: valuesOf(rec, headers[1:])}
			if i == 0 {
				row.Primary = key
				row.Span = len(members)
			}
			layout.Rows = append(layout.Rows, row)
		}
	}
	return layout
}

func valuesOf(rec Record, headers []string) []string {
	values := make([]string, len(headers))
	for i, h := range headers {
		values[i] = rec.Value(h)
	}
	return values
}

// Document is an exported file ready to be downloaded
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportDocument renders d as an HTML table wrapped in a minimal document that word
// processors open as a .doc file. Only the filename depends on now.
func ExportDocument(d *Dataset, now time.Time) (Document, error) {
	if d == nil {
		return Document{}, ErrNoData
	}
	body, err := RenderDocument(d)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Filename:    fmt.Sprintf("table-%d.doc", now.UnixMilli()),
		ContentType: DocumentContentType,
		Body:        body,
	}, nil
}

// RenderDocument returns the document markup for d
func RenderDocument(d *Dataset) ([]byte, error) {
	meta := element(atom.Meta, attr("charset", "utf-8"))
	head := element(atom.Head)
	head.AppendChild(meta)

	body := element(atom.Body)
	body.AppendChild(tableNode(Layout(d)))

	root := element(atom.Html)
	root.AppendChild(head)
	root.AppendChild(body)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, fmt.Errorf("rendering document: %w", err)
	}
	return buf.Bytes(), nil
}

func tableNode(layout TableLayout) *html.Node {
	tbl := element(atom.Table, attr("border", "1"), attr("style", "border-collapse: collapse;"))

	headRow := element(atom.Tr)
	for _, label := range layout.Labels {
		headRow.AppendChild(cell(atom.Th, label))
	}
	thead := element(atom.Thead)
	thead.AppendChild(headRow)
	tbl.AppendChild(thead)

	tbody := element(atom.Tbody)
	for _, row := range layout.Rows {
		tr := element(atom.Tr)
		if layout.Primary && row.Span > 0 {
			td := cell(atom.Td, row.Primary)
			td.Attr = append(td.Attr, attr("rowspan", strconv.Itoa(row.Span)))
			tr.AppendChild(td)
		}
		for _, v := range row.Values {
			tr.AppendChild(cell(atom.Td, v))
		}
		tbody.AppendChild(tr)
	}
	tbl.AppendChild(tbody)
	return tbl
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func cell(a atom.Atom, text string) *html.Node {
	n := element(a)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}
