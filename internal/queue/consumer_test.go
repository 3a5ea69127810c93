package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	ev := ReservationEvent{
		Type:          EventReservationConfirmed,
		ReservationID: 7,
		UserID:        3,
		PerformanceID: 11,
		PlayTitle:     "Edge of Stage",
		HallName:      "Blue",
		ShowTime:      "2026-05-01T19:00:00Z",
		Seats:         []string{"r1/s1", "r2/s3"},
		OccurredAt:    "2026-04-01T10:00:00Z",
	}

	line := FormatLine(ev)
	assert.Equal(t,
		`[2026-04-01T10:00:00Z] Reservation confirmed | reservation_id=7 | user_id=3 | performance_id=11 | play="Edge of Stage" | hall="Blue" | show_time=2026-05-01T19:00:00Z | seats=[r1/s1,r2/s3]`+"\n",
		line)

	ev.Type = EventReservationCancelled
	assert.Contains(t, FormatLine(ev), "Reservation cancelled")
}

func TestConsumer_HandleAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reservations.log")
	c := &Consumer{LogPath: path}

	for _, id := range []uint64{1, 2} {
		body, err := json.Marshal(ReservationEvent{Type: EventReservationConfirmed, ReservationID: id})
		require.NoError(t, err)
		require.NoError(t, c.handle(body))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reservation_id=1 ")
	assert.Contains(t, string(data), "reservation_id=2 ")
}

func TestConsumer_HandleRejectsGarbage(t *testing.T) {
	c := &Consumer{LogPath: filepath.Join(t.TempDir(), "r.log")}
	assert.Error(t, c.handle([]byte("{not json")))
}
