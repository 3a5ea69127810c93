package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/theatre-seat-reservation/internal/queue"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
	"github.com/iliyamo/theatre-seat-reservation/internal/seating"
)

var (
	qBounds      = regexp.QuoteMeta(`SELECT h.seat_rows, h.seats_in_row`)
	qInsertRes   = regexp.QuoteMeta(`INSERT INTO reservations (user_id, performance_id) VALUES (?, ?)`)
	qResCreated  = regexp.QuoteMeta(`SELECT created_at FROM reservations WHERE id = ?`)
	qLockTicket  = `SELECT id, performance_id, row_num, seat_num, reservation_id\s+FROM tickets\s+WHERE performance_id = \? AND row_num = \? AND seat_num = \?\s+FOR UPDATE`
	qBindTickets = regexp.QuoteMeta(`UPDATE tickets SET reservation_id = ? WHERE reservation_id IS NULL AND id IN (`)
	qDetail      = regexp.QuoteMeta(`SELECT`) + `\s+pf\.id, pf\.show_time`
)

var ticketCols = []string{"id", "performance_id", "row_num", "seat_num", "reservation_id"}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type recordingCache struct {
	ids []uint64
	err error
}

func (c *recordingCache) InvalidateSeats(_ context.Context, id uint64) error {
	c.ids = append(c.ids, id)
	return c.err
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func quietLogger() (logrus.FieldLogger, *test.Hook) {
	return test.NewNullLogger()
}

func expectBounds(mock sqlmock.Sqlmock, perfID uint64, rows, seats int) {
	mock.ExpectQuery(qBounds).WithArgs(perfID).
		WillReturnRows(sqlmock.NewRows([]string{"seat_rows", "seats_in_row"}).AddRow(rows, seats))
}

func expectReservationInsert(mock sqlmock.Sqlmock, userID, perfID uint64, resID int64) {
	mock.ExpectExec(qInsertRes).WithArgs(userID, perfID).WillReturnResult(sqlmock.NewResult(resID, 1))
	mock.ExpectQuery(qResCreated).WithArgs(resID).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)))
}

func expectFreeTicket(mock sqlmock.Sqlmock, perfID uint64, id int64, row, seat int) {
	mock.ExpectQuery(qLockTicket).WithArgs(perfID, row, seat).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(id, perfID, row, seat, nil))
}

func TestReserve_BindsSeatsInOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	pub := &recordingPublisher{}
	cache := &recordingCache{}
	svc := NewReservationService(db, WithLogger(log), WithPublisher(pub), WithSeatCache(cache))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	// requested out of order, locked in (row, seat) order
	expectFreeTicket(mock, 7, 11, 1, 2)
	expectFreeTicket(mock, 7, 17, 2, 3)
	mock.ExpectExec(qBindTickets).WithArgs(100, 11, 17).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectQuery(qDetail).WithArgs(7).WillReturnError(sql.ErrConnDone)

	res, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 2, Seat: 3}, {Row: 1, Seat: 2}})
	require.NoError(t, err)

	assert.Equal(t, uint64(100), res.ID)
	assert.Equal(t, uint64(42), res.UserID)
	assert.Equal(t, uint64(7), res.PerformanceID)
	require.Len(t, res.Tickets, 2)
	assert.Equal(t, uint32(1), res.Tickets[0].Row)
	assert.Equal(t, uint32(2), res.Tickets[1].Row)
	assert.False(t, res.CreatedAt.IsZero())

	assert.Equal(t, []uint64{7}, cache.ids)
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, queue.EventReservationConfirmed, ev.Type)
	assert.Equal(t, uint64(100), ev.ReservationID)
	assert.Equal(t, []string{"r1/s2", "r2/s3"}, ev.Seats)
	assert.Empty(t, ev.PlayTitle, "details are optional when the lookup fails")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_RejectsTakenSeatAndRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	pub := &recordingPublisher{}
	svc := NewReservationService(db, WithLogger(log), WithPublisher(pub))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	expectFreeTicket(mock, 7, 11, 1, 1)
	mock.ExpectQuery(qLockTicket).WithArgs(7, 1, 2).
		WillReturnRows(sqlmock.NewRows(ticketCols).AddRow(12, 7, 1, 2, 99))
	mock.ExpectRollback()

	res, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 1, Seat: 1}, {Row: 1, Seat: 2}})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, KindConflict, KindOf(err))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "seat r1/s2 is already reserved", se.Message)
	assert.Empty(t, pub.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_MissingTicketIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	mock.ExpectQuery(qLockTicket).WithArgs(7, 3, 4).WillReturnRows(sqlmock.NewRows(ticketCols))
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 3, Seat: 4}})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, errors.Is(err, repository.ErrTicketNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_ShortBindIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	expectFreeTicket(mock, 7, 11, 1, 1)
	expectFreeTicket(mock, 7, 12, 1, 2)
	mock.ExpectExec(qBindTickets).WithArgs(100, 11, 12).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 1, Seat: 1}, {Row: 1, Seat: 2}})
	assert.Equal(t, KindConflict, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_DeadlockIsRetryable(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	mock.ExpectQuery(qLockTicket).WithArgs(7, 1, 1).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 1, Seat: 1}})
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.True(t, repository.IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_SyntaxErrorIsNotRetryable(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	mock.ExpectQuery(qLockTicket).WithArgs(7, 1, 1).
		WillReturnError(&mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"})
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 1, Seat: 1}})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, Retryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_ValidationTouchesNoRows(t *testing.T) {
	cases := []struct {
		name  string
		seats []seating.Coord
		want  string
	}{
		{"duplicate", []seating.Coord{{Row: 1, Seat: 1}, {Row: 1, Seat: 1}}, "duplicate seat r1/s1 in request"},
		{"out of bounds", []seating.Coord{{Row: 1, Seat: 5}}, "seat r1/s5 out of hall bounds (3x4)"},
		{"row zero", []seating.Coord{{Row: 0, Seat: 1}}, "seat r0/s1 out of hall bounds (3x4)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			log, _ := quietLogger()
			svc := NewReservationService(db, WithLogger(log))
			expectBounds(mock, 7, 3, 4)

			_, err := svc.Reserve(context.Background(), 42, 7, tc.seats)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tc.want, se.Message)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("empty request skips storage entirely", func(t *testing.T) {
		db, mock := newMockDB(t)
		log, _ := quietLogger()
		svc := NewReservationService(db, WithLogger(log))

		_, err := svc.Reserve(context.Background(), 42, 7, nil)
		assert.Equal(t, KindValidation, KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReserve_UnknownPerformance(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	mock.ExpectQuery(qBounds).WithArgs(9).WillReturnRows(sqlmock.NewRows([]string{"seat_rows", "seats_in_row"}))

	_, err := svc.Reserve(context.Background(), 42, 9, []seating.Coord{{Row: 1, Seat: 1}})
	assert.Equal(t, KindNotFound, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_PerformanceDeletedMidRequestIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	mock.ExpectExec(qInsertRes).WithArgs(42, 7).WillReturnError(&mysql.MySQLError{
		Number:  1452,
		Message: "Cannot add or update a child row: a foreign key constraint fails (`theatre`.`reservations`, CONSTRAINT `fk_reservations_performance` FOREIGN KEY (`performance_id`) REFERENCES `performances` (`id`) ON DELETE CASCADE)",
	})
	mock.ExpectRollback()

	_, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 1, Seat: 1}})
	assert.Equal(t, KindNotFound, KindOf(err))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "performance 7 not found", se.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_SideEffectFailuresDoNotFailTheCall(t *testing.T) {
	db, mock := newMockDB(t)
	log, hook := quietLogger()
	pub := &recordingPublisher{err: errors.New("broker down")}
	cache := &recordingCache{err: errors.New("redis down")}
	svc := NewReservationService(db, WithLogger(log), WithPublisher(pub), WithSeatCache(cache))

	expectBounds(mock, 7, 3, 4)
	mock.ExpectBegin()
	expectReservationInsert(mock, 42, 7, 100)
	expectFreeTicket(mock, 7, 11, 1, 1)
	mock.ExpectExec(qBindTickets).WithArgs(100, 11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(qDetail).WithArgs(7).WillReturnError(sql.ErrConnDone)

	res, err := svc.Reserve(context.Background(), 42, 7, []seating.Coord{{Row: 1, Seat: 1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.ID)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailableSeats(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, play_id, hall_id, show_time, created_at FROM performances WHERE id = ?`)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}).
			AddRow(7, 1, 2, time.Now(), time.Now()))
	mock.ExpectQuery(`FROM tickets\s+WHERE performance_id = \? AND reservation_id IS NULL\s+ORDER BY row_num, seat_num`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"row_num", "seat_num"}).AddRow(1, 1).AddRow(1, 3).AddRow(2, 1))

	seats, err := svc.AvailableSeats(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, seats, 3)
	assert.Equal(t, uint32(1), seats[1].Row)
	assert.Equal(t, uint32(3), seats[1].Seat)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailableSeats_UnknownPerformance(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	mock.ExpectQuery(`FROM performances WHERE id = \?`).WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}))

	_, err := svc.AvailableSeats(context.Background(), 8)
	assert.Equal(t, KindNotFound, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_OtherUsersReservationIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewReservationService(db, WithLogger(log))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM reservations WHERE id = ? AND user_id = ?`)).WithArgs(100, 43).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "performance_id", "created_at"}))

	err := svc.Cancel(context.Background(), 43, 100)
	assert.Equal(t, KindNotFound, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_DeletesAndPublishes(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	pub := &recordingPublisher{}
	cache := &recordingCache{}
	svc := NewReservationService(db, WithLogger(log), WithPublisher(pub), WithSeatCache(cache))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM reservations WHERE id = ? AND user_id = ?`)).WithArgs(100, 42).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "performance_id", "created_at"}).
			AddRow(100, 42, 7, time.Now()))
	mock.ExpectQuery(`FROM tickets\s+WHERE reservation_id IN \(\?\)`).WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"reservation_id", "id", "row_num", "seat_num"}).AddRow(100, 11, 1, 1))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT performance_id FROM reservations WHERE id = ? AND user_id = ? FOR UPDATE`)).
		WithArgs(100, 42).WillReturnRows(sqlmock.NewRows([]string{"performance_id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reservations WHERE id = ?`)).WithArgs(100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(qDetail).WithArgs(7).WillReturnError(sql.ErrConnDone)

	require.NoError(t, svc.Cancel(context.Background(), 42, 100))
	assert.Equal(t, []uint64{7}, cache.ids)
	require.Len(t, pub.events, 1)
	assert.Equal(t, queue.EventReservationCancelled, pub.events[0].Type)
	assert.Equal(t, []string{"r1/s1"}, pub.events[0].Seats)
	require.NoError(t, mock.ExpectationsWereMet())
}
