package calendar

import (
	"context"
	"fmt"
	"time"

	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleBusySource queries the FreeBusy API of one calendar using a
// service-account credentials file.
type GoogleBusySource struct {
	svc        *calendarapi.Service
	calendarID string
}

// NewGoogleBusySource builds the service-account variant. calendarID is
// usually "primary" or a shared calendar address.
func NewGoogleBusySource(ctx context.Context, credentialsFile, calendarID string) (*GoogleBusySource, error) {
	svc, err := calendarapi.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendarapi.CalendarReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}
	return &GoogleBusySource{svc: svc, calendarID: calendarID}, nil
}

func (g *GoogleBusySource) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	query := &calendarapi.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*calendarapi.FreeBusyRequestItem{{Id: g.calendarID}},
	}
	res, err := g.svc.Freebusy.Query(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: freebusy query: %v", ErrCalendarUnavailable, err)
	}
	cal, ok := res.Calendars[g.calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %s missing from freebusy response", ErrCalendarUnavailable, g.calendarID)
	}
	return parseBusyPeriods(cal.Busy)
}

func parseBusyPeriods(periods []*calendarapi.TimePeriod) ([]Interval, error) {
	out := make([]Interval, 0, len(periods))
	for _, p := range periods {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: bad busy start %q", ErrCalendarUnavailable, p.Start)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("%w: bad busy end %q", ErrCalendarUnavailable, p.End)
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out, nil
}
