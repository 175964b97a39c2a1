// Package cli provides output helpers for the tcmkb command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/hyperjump/tcmkb/internal/search"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Printer writes command results in one format.
type Printer struct {
	W      io.Writer
	Format OutputFormat
	// PreviewLength caps the characters of content shown per result in text output.
	PreviewLength int
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// SearchResults writes a single knowledge base search response.
func (p *Printer) SearchResults(resp *models.SearchResponse) error {
	w := p.W
	if p.Format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (%s search, threshold %.2f)\n\n",
		resp.Total, resp.QueryTime, resp.SearchType, resp.Threshold)
	for _, r := range resp.Results {
		p.writeOneResult(r)
	}
	return nil
}

// RetrieveResults writes a multi knowledge base retrieval response.
func (p *Printer) RetrieveResults(resp *models.RetrieveResponse) error {
	w := p.W
	if p.Format == OutputJSON {
		return WriteJSON(w, resp)
	}
	fmt.Fprintf(w, "\nRetrieved %d paragraphs from %d knowledge base(s) in %dms (threshold %.2f)\n\n",
		resp.Total, len(resp.KnowledgeBaseIDs), resp.QueryTime, resp.Threshold)
	for _, r := range resp.Results {
		p.writeOneResult(r)
	}
	return nil
}

func (p *Printer) writeOneResult(r *models.SearchResult) {
	w := p.W
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", r.SearchType, r.Rank, r.Score)
	fmt.Fprintf(w, "Paragraph: %s  Document: %s\n", r.ParagraphID, r.DocumentID)
	if r.Title != "" {
		if r.PageNumber != nil {
			fmt.Fprintf(w, "Title: %s (p.%d)\n", r.Title, *r.PageNumber)
		} else {
			fmt.Fprintf(w, "Title: %s\n", r.Title)
		}
	}
	fmt.Fprintf(w, "\n%s\n\n", search.Preview(r.Content, p.PreviewLength))
}

// KnowledgeBases writes knowledge bases as a table or JSON.
func (p *Printer) KnowledgeBases(kbs []*models.KnowledgeBase) error {
	if p.Format == OutputJSON {
		if kbs == nil {
			kbs = []*models.KnowledgeBase{}
		}
		return WriteJSON(p.W, kbs)
	}
	tw := tabwriter.NewWriter(p.W, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tMODEL\tSEARCH\tTHRESHOLD\tTOP_K")
	for _, kb := range kbs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%.2f\t%d\n",
			kb.ID, kb.Name, kb.IsActive, kb.EmbeddingModel, kb.SearchType, kb.SimilarityThreshold, kb.TopK)
	}
	return tw.Flush()
}

// Document writes one document's processing state.
func (p *Printer) Document(doc *models.Document) error {
	w := p.W
	if p.Format == OutputJSON {
		return WriteJSON(w, doc)
	}
	fmt.Fprintf(w, "%s  %s  %s %d%%  paragraphs=%d chars=%d\n",
		doc.ID, doc.Name, doc.Status, doc.Progress, doc.ParagraphCount, doc.CharCount)
	if doc.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", doc.Error)
	}
	return nil
}
