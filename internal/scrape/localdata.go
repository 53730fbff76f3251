package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/pkg/localdata"
)

// LocalDataSource adapts the Local Business Data API into a Source,
// flattening its structured listings back to the raw text records the
// normalizer consumes.
type LocalDataSource struct {
	client localdata.Client
}

// NewLocalDataSource wraps a localdata client.
func NewLocalDataSource(c localdata.Client) *LocalDataSource {
	return &LocalDataSource{client: c}
}

// Fetch searches the API and maps failures onto the orchestrator's scrape
// error taxonomy: quota and block responses become ErrScrapeBlocked, network
// and gateway timeouts become ErrScrapeTimeout.
func (s *LocalDataSource) Fetch(ctx context.Context, query, region string, limit int) ([]model.RawListing, error) {
	businesses, err := s.client.Search(ctx, localdata.SearchRequest{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		return nil, classifyFetchErr(err)
	}

	out := make([]model.RawListing, 0, len(businesses))
	for _, b := range businesses {
		out = append(out, toRawListing(b))
	}
	return out, nil
}

func classifyFetchErr(err error) error {
	var apiErr *localdata.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusForbidden,
			apiErr.StatusCode == http.StatusTooManyRequests:
			return eris.Wrap(ErrScrapeBlocked, apiErr.Error())
		case apiErr.StatusCode == http.StatusGatewayTimeout,
			apiErr.StatusCode == http.StatusRequestTimeout:
			return eris.Wrap(ErrScrapeTimeout, apiErr.Error())
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return eris.Wrap(ErrScrapeTimeout, err.Error())
	}
	return err
}

func toRawListing(b localdata.Business) model.RawListing {
	raw := model.RawListing{
		Name:      b.Name,
		PhoneText: b.PhoneNumber,
		Website:   b.Website,
	}
	if b.ReviewCount > 0 || b.Rating > 0 {
		raw.ReviewText = fmt.Sprintf("%.1f (%d)", b.Rating, b.ReviewCount)
	}
	raw.HoursText = flattenHours(b)
	return raw
}

// flattenHours joins the schedule and description into one searchable text
// blob for availability-keyword detection.
func flattenHours(b localdata.Business) string {
	var parts []string

	days := make([]string, 0, len(b.WorkingHours))
	for day := range b.WorkingHours {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		if spans := b.WorkingHours[day]; len(spans) > 0 {
			parts = append(parts, day+": "+strings.Join(spans, ", "))
		}
	}

	if b.About != nil && b.About.Summary != "" {
		parts = append(parts, b.About.Summary)
	}
	return strings.Join(parts, "\n")
}
