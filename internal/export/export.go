// Package export renders lead data into the formats the sales side
// consumes: a tab-separated file that pastes cleanly into Sheets, and a
// spreadsheet workbook.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

// Pitch lines keyed on the audit finding.
const (
	pitchQualified = "After-hours calls go to voicemail - losing $1500+ emergency jobs"
	pitchCovered   = "Has coverage"
)

// Row is one exported lead.
type Row struct {
	Business  string `csv:"Business"`
	Phone     string `csv:"Phone"`
	City      string `csv:"City"`
	Result    string `csv:"Result"`
	Qualified string `csv:"Qualified"`
	Pitch     string `csv:"Sales Pitch"`
}

// Options filters the export.
type Options struct {
	Industry      string
	State         string
	QualifiedOnly bool
}

// rows loads and shapes the leads. The call result column shows the latest
// audit outcome, or "not called" when the lead never made it to a call.
func rows(ctx context.Context, st store.Store, opts Options) ([]Row, error) {
	filter := store.LeadFilter{
		Industry: opts.Industry,
		State:    opts.State,
	}
	if opts.QualifiedOnly {
		filter.Status = model.LeadStatusQualified
	}

	leads, err := st.ListLeads(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "export: list leads")
	}

	out := make([]Row, 0, len(leads))
	for _, lead := range leads {
		r := Row{
			Business: lead.Name,
			Phone:    lead.Phone,
			City:     lead.City,
			Result:   "not called",
		}

		audits, err := st.ListAudits(ctx, lead.Key)
		if err != nil {
			return nil, eris.Wrap(err, "export: list audits")
		}
		if len(audits) > 0 {
			// Audits come back in attempt order; the latest one wins.
			r.Result = string(audits[len(audits)-1].Outcome)
		}

		if lead.Status == model.LeadStatusQualified {
			r.Qualified = "YES ✓"
			r.Pitch = pitchQualified
		} else {
			r.Qualified = "NO"
			r.Pitch = pitchCovered
		}
		out = append(out, r)
	}
	return out, nil
}

// WriteTSV writes leads as tab-separated rows for pasting into Sheets.
func WriteTSV(ctx context.Context, st store.Store, opts Options, w io.Writer) (int, error) {
	data, err := rows(ctx, st, opts)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	enc := csvutil.NewEncoder(cw)
	for _, r := range data {
		if err := enc.Encode(r); err != nil {
			return 0, eris.Wrap(err, "export: encode row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "export: flush tsv")
	}
	return len(data), nil
}

// WriteXLSX writes leads as an xlsx workbook with a single Leads sheet.
func WriteXLSX(ctx context.Context, st store.Store, opts Options, w io.Writer) (int, error) {
	data, err := rows(ctx, st, opts)
	if err != nil {
		return 0, err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Business", "Phone", "City", "Result", "Qualified", "Sales Pitch"} {
		header.AddCell().SetString(h)
	}
	for _, r := range data {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Business)
		row.AddCell().SetString(r.Phone)
		row.AddCell().SetString(r.City)
		row.AddCell().SetString(r.Result)
		row.AddCell().SetString(r.Qualified)
		row.AddCell().SetString(r.Pitch)
	}

	if err := f.Write(w); err != nil {
		return 0, eris.Wrap(err, "export: write xlsx")
	}
	return len(data), nil
}

// Summary renders the status counts as aligned text lines for run output.
func Summary(counts map[model.LeadStatus]int) []string {
	order := []model.LeadStatus{
		model.LeadStatusNew,
		model.LeadStatusScheduled,
		model.LeadStatusCalled,
		model.LeadStatusQualified,
		model.LeadStatusDisqualified,
		model.LeadStatusContacted,
		model.LeadStatusConverted,
		model.LeadStatusFailed,
	}
	var lines []string
	for _, s := range order {
		if n, ok := counts[s]; ok && n > 0 {
			lines = append(lines, string(s)+": "+strconv.Itoa(n))
		}
	}
	return lines
}
