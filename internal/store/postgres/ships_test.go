package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"shipyard/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func shipRow(id string, status store.ShipStatus, warmPool bool, expiresAt *time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "status", "container_id", "endpoint", "cpus", "memory", "disk",
		"ttl_seconds", "created_at", "updated_at", "expires_at", "warm_pool",
	}).AddRow(id, status, "container-1", "10.0.0.5:8123", 1.0, "512m", "",
		3600, now, now, expiresAt, warmPool)
}

func TestClaimWarmPoolShip_Success(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	expiresAt := time.Now().Add(time.Hour)
	mock.ExpectQuery(`UPDATE ships SET warm_pool = false`).
		WillReturnRows(shipRow("ship-1", store.ShipStatusRunning, false, &expiresAt))

	sh, err := st.ClaimWarmPoolShip(context.Background(), nil, expiresAt)
	if err != nil {
		t.Fatalf("ClaimWarmPoolShip failed: %v", err)
	}
	if sh.ID != "ship-1" {
		t.Errorf("got ship id %q, want ship-1", sh.ID)
	}
	if sh.WarmPool {
		t.Errorf("claimed ship should have warm_pool=false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimWarmPoolShip_NoneAvailable(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	mock.ExpectQuery(`UPDATE ships SET warm_pool = false`).
		WillReturnError(sql.ErrNoRows)

	_, err := st.ClaimWarmPoolShip(context.Background(), nil, time.Now())
	if err != store.ErrNotFound {
		t.Fatalf("got err %v, want store.ErrNotFound", err)
	}
}

func TestListExpiredRunningShips(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	past := time.Now().Add(-time.Second)
	mock.ExpectQuery(`SELECT .* FROM ships`).
		WillReturnRows(shipRow("ship-2", store.ShipStatusRunning, false, &past))

	ships, err := st.ListExpiredRunningShips(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListExpiredRunningShips failed: %v", err)
	}
	if len(ships) != 1 || ships[0].ID != "ship-2" {
		t.Fatalf("unexpected result: %+v", ships)
	}
}

func TestCountNonStopped(t *testing.T) {
	st, mock := newMockStore(t)
	defer st.db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ships WHERE status`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := st.CountNonStopped(context.Background())
	if err != nil {
		t.Fatalf("CountNonStopped failed: %v", err)
	}
	if n != 3 {
		t.Errorf("got %d, want 3", n)
	}
}
