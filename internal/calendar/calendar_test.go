package calendar

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(t *testing.T) Event {
	t.Helper()
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	start := time.Date(2025, time.June, 2, 9, 30, 0, 0, london)
	return Event{
		Title:       "Full Groom - Rex",
		Description: "Groomer: Sam\nAdd-ons: Nail Trim, Teeth",
		Location:    "Smarter Dog; High Street",
		Start:       start,
		End:         start.Add(90 * time.Minute),
	}
}

func TestICS(t *testing.T) {
	created := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	doc := ICS(testEvent(t), Options{CreatedAt: created})

	assert.True(t, strings.HasPrefix(doc, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Smarter Dog//Booking System//EN\r\n"))
	assert.True(t, strings.HasSuffix(doc, "END:VEVENT\r\nEND:VCALENDAR\r\n"))

	lines := strings.Split(strings.TrimSuffix(doc, "\r\n"), "\r\n")
	assert.Contains(t, lines, "UID:1746100800000@smarterdog.co.uk")
	assert.Contains(t, lines, "DTSTAMP:20250501T120000Z")
	// BST is UTC+1
	assert.Contains(t, lines, "DTSTART:20250602T083000Z")
	assert.Contains(t, lines, "DTEND:20250602T100000Z")
	assert.Contains(t, lines, "SUMMARY:Full Groom - Rex")
	assert.Contains(t, lines, `DESCRIPTION:Groomer: Sam\nAdd-ons: Nail Trim\, Teeth`)
	assert.Contains(t, lines, `LOCATION:Smarter Dog\; High Street`)
	assert.Contains(t, lines, "STATUS:CONFIRMED")
	assert.Contains(t, lines, "SEQUENCE:0")
	assert.Contains(t, lines, "TRIGGER:-PT24H")
	assert.Contains(t, lines, "DESCRIPTION:Reminder: Dog grooming appointment tomorrow")

	for _, l := range lines {
		assert.NotContains(t, l, "\n")
	}
}

func TestICSFoldsLongLines(t *testing.T) {
	ev := testEvent(t)
	ev.Description = "Groomer: Sam\nAdd-ons: Nail Trim, Teeth Cleaning, Flea Treatment, Pawdicure, Blueberry Facial, De-shedding"
	ev.Location = "Smarter Dog Grooming Salon, Unit 4 The Old Dairy, Long Lane, Little Snoring, Norfolk NR21 0AA"
	doc := ICS(ev, Options{CreatedAt: time.Unix(0, 0)})

	for _, l := range strings.Split(strings.TrimSuffix(doc, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(l), 75, "line %q", l)
	}

	unfolded := strings.ReplaceAll(doc, "\r\n ", "")
	assert.Contains(t, unfolded, `DESCRIPTION:Groomer: Sam\nAdd-ons: Nail Trim\, Teeth Cleaning\, Flea Treatment\, Pawdicure\, Blueberry Facial\, De-shedding`+"\r\n")
	assert.Contains(t, unfolded, `LOCATION:Smarter Dog Grooming Salon\, Unit 4 The Old Dairy\, Long Lane\, Little Snoring\, Norfolk NR21 0AA`+"\r\n")
}

func TestICSCustomOptions(t *testing.T) {
	created := time.UnixMilli(42)
	doc := ICS(testEvent(t), Options{ProdID: "-//Test//EN", Domain: "example.test", CreatedAt: created})
	assert.Contains(t, doc, "PRODID:-//Test//EN\r\n")
	assert.Contains(t, doc, "UID:42@example.test\r\n")
}

func TestGoogleCalendarURL(t *testing.T) {
	link := GoogleCalendarURL(testEvent(t))

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "calendar.google.com", u.Host)
	assert.Equal(t, "/calendar/render", u.Path)

	q := u.Query()
	assert.Equal(t, "TEMPLATE", q.Get("action"))
	assert.Equal(t, "Full Groom - Rex", q.Get("text"))
	assert.Equal(t, "Groomer: Sam\nAdd-ons: Nail Trim, Teeth", q.Get("details"))
	assert.Equal(t, "Smarter Dog; High Street", q.Get("location"))
	assert.Equal(t, "20250602T083000Z/20250602T100000Z", q.Get("dates"))
	assert.NotContains(t, link, " ")
}
