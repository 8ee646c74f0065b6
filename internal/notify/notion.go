package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/paypal-pipeline/internal/pipeline"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
)

// Notion limits a rich text block to 2000 characters.
const maxRichText = 2000

// Property names of the run report database.
const (
	PropRunID         = "Run ID"
	PropStatus        = "Status"
	PropSource        = "Data Source"
	PropWindow        = "Window"
	PropExecutionDate = "Execution Date"
	PropExtracted     = "Extracted"
	PropTransformed   = "Transformed"
	PropParsingErrors = "Parsing Errors"
	PropLoadedRows    = "Loaded Rows"
	PropQualityScore  = "Quality Score"
	PropDegraded      = "Degraded"
	PropDuration      = "Duration (s)"
	PropFinished      = "Finished"
	PropErrors        = "Errors"
)

// NotionNotifier upserts one page per run, keyed by the run id title.
type NotionNotifier struct {
	svc        NotionService
	databaseID string
	log        zerolog.Logger
}

var _ pipeline.Notifier = (*NotionNotifier)(nil)

// NewNotionNotifier creates a notifier writing to databaseID.
func NewNotionNotifier(svc NotionService, databaseID string, log zerolog.Logger) *NotionNotifier {
	return &NotionNotifier{svc: svc, databaseID: databaseID, log: log}
}

// Notify implements pipeline.Notifier. A page whose title equals the run id
// is updated; otherwise a new page is created.
func (n *NotionNotifier) Notify(ctx context.Context, s pipeline.Summary) error {
	pages, err := queryAllPages(ctx, n.svc, n.databaseID)
	if err != nil {
		return fmt.Errorf("NotionNotifier.Notify: %w", err)
	}

	props := SummaryToNotionProperties(s)
	for _, page := range pages {
		if pageTitle(page) != s.RunID {
			continue
		}
		if _, err := n.svc.UpdatePage(ctx, string(page.ID), props); err != nil {
			return fmt.Errorf("NotionNotifier.Notify: update %s: %w", s.RunID, err)
		}
		n.log.Info().Str("run_id", s.RunID).Str("page_id", string(page.ID)).Msg("Updated Notion run report")
		return nil
	}

	page, err := n.svc.CreatePage(ctx, n.databaseID, props)
	if err != nil {
		return fmt.Errorf("NotionNotifier.Notify: create %s: %w", s.RunID, err)
	}
	n.log.Info().Str("run_id", s.RunID).Str("page_id", string(page.ID)).Msg("Created Notion run report")
	return nil
}

// SummaryToNotionProperties maps a run summary to report page properties.
func SummaryToNotionProperties(s pipeline.Summary) notionapi.Properties {
	props := notionapi.Properties{
		PropRunID: notionapi.TitleProperty{
			Title: []notionapi.RichText{richText(s.RunID)},
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: s.Status},
		},
		PropWindow: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{richText(s.DateRange.Key())},
		},
		PropExtracted:     notionapi.NumberProperty{Number: float64(s.Metrics.ExtractedTransactions)},
		PropTransformed:   notionapi.NumberProperty{Number: float64(s.Metrics.TransformedTransactions)},
		PropParsingErrors: notionapi.NumberProperty{Number: float64(s.Metrics.ParsingErrors)},
		PropLoadedRows:    notionapi.NumberProperty{Number: float64(s.Metrics.LoadedRows)},
		PropDegraded:      notionapi.CheckboxProperty{Checkbox: s.Status == pipeline.StatusDegraded},
		PropDuration:      notionapi.NumberProperty{Number: s.Duration},
	}

	if s.DataSource != "" {
		props[PropSource] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: s.DataSource},
		}
	}

	if s.ExecutionDate.IsValid() {
		t := s.ExecutionDate.In(time.UTC)
		props[PropExecutionDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: (*notionapi.Date)(&t)},
		}
	}

	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		props[PropFinished] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: (*notionapi.Date)(&finished)},
		}
	}

	if s.Metrics.DataQualityScore != nil {
		props[PropQualityScore] = notionapi.NumberProperty{Number: *s.Metrics.DataQualityScore}
	}

	if len(s.Errors) > 0 {
		props[PropErrors] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{richText(truncate(strings.Join(s.Errors, "\n"), maxRichText))},
		}
	}

	return props
}

func richText(s string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// queryAllPages reads every page of the database, following cursors.
func queryAllPages(ctx context.Context, svc NotionService, databaseID string) ([]notionapi.Page, error) {
	var (
		pages  []notionapi.Page
		cursor notionapi.Cursor
	)
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := svc.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		pages = append(pages, resp.Results...)

		if !resp.HasMore {
			return pages, nil
		}
		cursor = resp.NextCursor
	}
}

// pageTitle returns the plain text of the run id title, or "".
func pageTitle(page notionapi.Page) string {
	prop, ok := page.Properties[PropRunID]
	if !ok {
		return ""
	}
	title, ok := prop.(*notionapi.TitleProperty)
	if !ok || len(title.Title) == 0 {
		return ""
	}
	return title.Title[0].PlainText
}
