package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	qHallShare    = regexp.QuoteMeta(`SELECT id, name, seat_rows, seats_in_row, created_at FROM theatre_halls WHERE id = ? FOR SHARE`)
	qPlayExists   = regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM plays WHERE id = ?)`)
	qInsertPerf   = regexp.QuoteMeta(`INSERT INTO performances (play_id, hall_id, show_time) VALUES (?, ?, ?)`)
	qSelectPerf   = regexp.QuoteMeta(`SELECT id, play_id, hall_id, show_time, created_at FROM performances WHERE id = ?`)
	qInsertTicket = regexp.QuoteMeta(`INSERT INTO tickets (performance_id, row_num, seat_num) VALUES `)
)

var showTime = time.Date(2026, 11, 20, 19, 30, 0, 0, time.UTC)

func expectHall(mock sqlmock.Sqlmock, id uint64, rows, seats int) {
	mock.ExpectQuery(qHallShare).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "seat_rows", "seats_in_row", "created_at"}).
			AddRow(id, "Main", rows, seats, time.Now()))
}

func TestPerformanceCreate_GeneratesEverySeat(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)

	mock.ExpectBegin()
	expectHall(mock, 2, 2, 3)
	mock.ExpectQuery(qPlayExists).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	mock.ExpectExec(qInsertPerf).WithArgs(1, 2, showTime).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(qSelectPerf).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}).
			AddRow(5, 1, 2, showTime, time.Now()))
	mock.ExpectExec(qInsertTicket).
		WithArgs(5, 1, 1, 5, 1, 2, 5, 1, 3, 5, 2, 1, 5, 2, 2, 5, 2, 3).
		WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectCommit()

	p, err := svc.Create(context.Background(), 1, 2, showTime)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.ID)
	assert.Equal(t, showTime, p.ShowTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceCreate_LargeHallIsChunked(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)

	mock.ExpectBegin()
	expectHall(mock, 2, 50, 30)
	mock.ExpectQuery(qPlayExists).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	mock.ExpectExec(qInsertPerf).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(qSelectPerf).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}).
			AddRow(5, 1, 2, showTime, time.Now()))
	mock.ExpectExec(qInsertTicket).WillReturnResult(sqlmock.NewResult(0, 1000))
	mock.ExpectExec(qInsertTicket).WillReturnResult(sqlmock.NewResult(0, 500))
	mock.ExpectCommit()

	_, err := svc.Create(context.Background(), 1, 2, showTime)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceCreate_DuplicateShowTimeIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)

	mock.ExpectBegin()
	expectHall(mock, 2, 2, 3)
	mock.ExpectQuery(qPlayExists).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	mock.ExpectExec(qInsertPerf).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_performances_hall_time'"})
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), 1, 2, showTime)
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceCreate_TicketFailureRollsBackPerformance(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)

	mock.ExpectBegin()
	expectHall(mock, 2, 2, 3)
	mock.ExpectQuery(qPlayExists).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	mock.ExpectExec(qInsertPerf).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(qSelectPerf).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}).
			AddRow(5, 1, 2, showTime, time.Now()))
	mock.ExpectExec(qInsertTicket).WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	p, err := svc.Create(context.Background(), 1, 2, showTime)
	assert.Nil(t, p)
	assert.Equal(t, KindUnavailable, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceCreate_UnknownReferences(t *testing.T) {
	t.Run("hall", func(t *testing.T) {
		db, mock := newMockDB(t)
		log, _ := quietLogger()
		svc := NewPerformanceService(db, log)

		mock.ExpectBegin()
		mock.ExpectQuery(qHallShare).WithArgs(9).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "seat_rows", "seats_in_row", "created_at"}))
		mock.ExpectRollback()

		_, err := svc.Create(context.Background(), 1, 9, showTime)
		assert.Equal(t, KindNotFound, KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("play", func(t *testing.T) {
		db, mock := newMockDB(t)
		log, _ := quietLogger()
		svc := NewPerformanceService(db, log)

		mock.ExpectBegin()
		expectHall(mock, 2, 2, 3)
		mock.ExpectQuery(qPlayExists).WithArgs(8).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
		mock.ExpectRollback()

		_, err := svc.Create(context.Background(), 8, 2, showTime)
		assert.Equal(t, KindNotFound, KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing ids are validation", func(t *testing.T) {
		db, mock := newMockDB(t)
		log, _ := quietLogger()
		svc := NewPerformanceService(db, log)

		_, err := svc.Create(context.Background(), 0, 2, showTime)
		assert.Equal(t, KindValidation, KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEnsureSeats_IsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)

	mock.ExpectQuery(qSelectPerf).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}).
			AddRow(5, 1, 2, showTime, time.Now()))
	mock.ExpectBegin()
	expectHall(mock, 2, 2, 3)
	mock.ExpectExec(qInsertTicket + `.*` + regexp.QuoteMeta(`ON DUPLICATE KEY UPDATE id = id`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := svc.EnsureSeats(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

var (
	qLockPerf     = regexp.QuoteMeta(`SELECT id, play_id, hall_id, show_time, created_at FROM performances WHERE id = ? FOR UPDATE`)
	qHasReserved  = regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM tickets WHERE performance_id = ? AND reservation_id IS NOT NULL)`)
	qDeleteTicket = regexp.QuoteMeta(`DELETE FROM tickets WHERE performance_id = ?`)
	qUpdatePerf   = regexp.QuoteMeta(`UPDATE performances SET play_id = ?, hall_id = ?, show_time = ? WHERE id = ?`)
)

func expectLockedPerformance(mock sqlmock.Sqlmock, id, playID, hallID uint64) {
	mock.ExpectQuery(qLockPerf).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}).
			AddRow(id, playID, hallID, showTime, time.Now()))
}

func TestPerformanceUpdate_ShowTimeOnly(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)
	later := showTime.Add(2 * time.Hour)

	mock.ExpectBegin()
	expectLockedPerformance(mock, 5, 1, 2)
	mock.ExpectExec(qUpdatePerf).WithArgs(1, 2, later, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := svc.Update(context.Background(), 5, PerformanceUpdate{ShowTime: &later})
	require.NoError(t, err)
	assert.Equal(t, later, p.ShowTime)
	assert.Equal(t, uint64(2), p.HallID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceUpdate_HallChangeRegeneratesSeats(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)
	hall := uint64(3)

	mock.ExpectBegin()
	expectLockedPerformance(mock, 5, 1, 2)
	expectHall(mock, 3, 2, 2)
	mock.ExpectQuery(qHasReserved).WithArgs(5).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
	mock.ExpectExec(qDeleteTicket).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 6))
	mock.ExpectExec(qInsertTicket).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(qUpdatePerf).WithArgs(1, 3, showTime, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := svc.Update(context.Background(), 5, PerformanceUpdate{HallID: &hall})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.HallID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceUpdate_HallChangeWithReservationsIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)
	hall := uint64(3)

	mock.ExpectBegin()
	expectLockedPerformance(mock, 5, 1, 2)
	expectHall(mock, 3, 2, 2)
	mock.ExpectQuery(qHasReserved).WithArgs(5).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	mock.ExpectRollback()

	p, err := svc.Update(context.Background(), 5, PerformanceUpdate{HallID: &hall})
	assert.Nil(t, p)
	assert.Equal(t, KindConflict, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceUpdate_UnknownPlayAndPerformance(t *testing.T) {
	t.Run("performance", func(t *testing.T) {
		db, mock := newMockDB(t)
		log, _ := quietLogger()
		svc := NewPerformanceService(db, log)

		mock.ExpectBegin()
		mock.ExpectQuery(qLockPerf).WithArgs(9).
			WillReturnRows(sqlmock.NewRows([]string{"id", "play_id", "hall_id", "show_time", "created_at"}))
		mock.ExpectRollback()

		_, err := svc.Update(context.Background(), 9, PerformanceUpdate{ShowTime: &showTime})
		assert.Equal(t, KindNotFound, KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("play", func(t *testing.T) {
		db, mock := newMockDB(t)
		log, _ := quietLogger()
		svc := NewPerformanceService(db, log)
		play := uint64(44)

		mock.ExpectBegin()
		expectLockedPerformance(mock, 5, 1, 2)
		mock.ExpectQuery(qPlayExists).WithArgs(44).WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
		mock.ExpectRollback()

		_, err := svc.Update(context.Background(), 5, PerformanceUpdate{PlayID: &play})
		assert.Equal(t, KindNotFound, KindOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPerformanceUpdate_TakenShowTimeIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	log, _ := quietLogger()
	svc := NewPerformanceService(db, log)

	mock.ExpectBegin()
	expectLockedPerformance(mock, 5, 1, 2)
	mock.ExpectExec(qUpdatePerf).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'uq_performances_hall_time'"})
	mock.ExpectRollback()

	_, err := svc.Update(context.Background(), 5, PerformanceUpdate{ShowTime: &showTime})
	assert.Equal(t, KindConflict, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
