// Package calendar renders appointments as iCalendar documents and
// Google Calendar links.
package calendar

import (
	"fmt"
	"net/url"
	"time"

	ics "github.com/arran4/golang-ical"
)

const (
	DefaultProdID = "-//Smarter Dog//Booking System//EN"
	DefaultDomain = "smarterdog.co.uk"

	googleRenderURL = "https://calendar.google.com/calendar/render"
	utcBasicLayout  = "20060102T150405Z"
	reminderText    = "Reminder: Dog grooming appointment tomorrow"
)

type Event struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

type Options struct {
	ProdID string
	Domain string
	// CreatedAt seeds the UID and DTSTAMP. Zero means now.
	CreatedAt time.Time
}

// ICS renders a VCALENDAR with a single VEVENT and a reminder 24 hours before.
func ICS(ev Event, opts Options) string {
	if opts.ProdID == "" {
		opts.ProdID = DefaultProdID
	}
	if opts.Domain == "" {
		opts.Domain = DefaultDomain
	}
	if opts.CreatedAt.IsZero() {
		opts.CreatedAt = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetProductId(opts.ProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)

	event := cal.AddEvent(fmt.Sprintf("%d@%s", opts.CreatedAt.UnixMilli(), opts.Domain))
	event.SetDtStampTime(opts.CreatedAt)
	event.SetStartAt(ev.Start)
	event.SetEndAt(ev.End)
	event.SetSummary(ev.Title)
	event.SetDescription(ev.Description)
	event.SetLocation(ev.Location)
	event.SetStatus(ics.ObjectStatusConfirmed)
	event.SetProperty(ics.ComponentPropertySequence, "0")

	alarm := event.AddAlarm()
	alarm.SetTrigger("-PT24H")
	alarm.SetAction(ics.ActionDisplay)
	alarm.SetProperty(ics.ComponentPropertyDescription, reminderText)

	return cal.Serialize()
}

// GoogleCalendarURL builds an "add event" link with the same fields as ICS.
func GoogleCalendarURL(ev Event) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", ev.Title)
	q.Set("details", ev.Description)
	q.Set("location", ev.Location)
	q.Set("dates", utcBasic(ev.Start)+"/"+utcBasic(ev.End))
	return googleRenderURL + "?" + q.Encode()
}

func utcBasic(t time.Time) string {
	return t.UTC().Format(utcBasicLayout)
}
