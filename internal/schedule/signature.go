package schedule

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"inkycal/internal/model"
)

// SignatureInput is the render-relevant subset of run state. Anything that
// changes the drawn image belongs here; anything that does not (weather
// annotations, alert bodies) must stay out so it cannot trigger a refresh.
type SignatureInput struct {
	HeaderDate     string
	SleepBanner    bool
	WifiStatus     string
	UPS            model.UPSStatus
	AlertHeadlines []string
	Events         []model.Event
	TomorrowEvents []model.Event
}

// Signature serializes the input into a canonical key-sorted JSON payload
// and returns its SHA-256 hex digest. Event times are formatted in the
// display timezone so the hash is independent of each provider's zone.
//
// Two runs with byte-identical relevant state produce identical hashes;
// any relevant difference changes the hash.
func Signature(tz *time.Location, in SignatureInput) string {
	eventPayload := func(e model.Event) map[string]any {
		return map[string]any{
			"source":           e.Source,
			"title":            e.Title,
			"start":            e.Start.In(tz).Format(time.RFC3339),
			"end":              e.End.In(tz).Format(time.RFC3339),
			"all_day":          e.AllDay,
			"location":         e.Location,
			"travel_time_text": e.TravelTimeText,
		}
	}

	events := make([]map[string]any, 0, len(in.Events))
	for _, e := range in.Events {
		events = append(events, eventPayload(e))
	}
	tomorrow := make([]map[string]any, 0, len(in.TomorrowEvents))
	for _, e := range in.TomorrowEvents {
		tomorrow = append(tomorrow, eventPayload(e))
	}

	headlines := make([]string, len(in.AlertHeadlines))
	copy(headlines, in.AlertHeadlines)
	sort.Strings(headlines)

	payload := map[string]any{
		"header_date":  in.HeaderDate,
		"sleep_banner": in.SleepBanner,
		"wifi_status":  in.WifiStatus,
		"ups_status": map[string]any{
			"present":  in.UPS.Present,
			"status":   in.UPS.Status,
			"capacity": in.UPS.Capacity,
			"online":   in.UPS.Online,
		},
		"alert_headlines": headlines,
		"events":          events,
		"tomorrow_events": tomorrow,
	}

	// encoding/json emits map keys sorted; escaping is disabled so titles
	// keep their UTF-8 bytes and the digest is locale-independent.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		// Payload is built from plain strings, bools and ints; Marshal
		// cannot fail on it.
		panic(err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
