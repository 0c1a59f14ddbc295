package repository

import (
	"context"
	"testing"

	"yieldlooper/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func positionRows(returned ...model.Position) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "uid", "archetype", "status", "deployment_usd", "entry_timestamp"})
	for _, pos := range returned {
		rows.AddRow(pos.ID, pos.UID, pos.Archetype, pos.Status, pos.DeploymentUSD, pos.EntryTimestamp)
	}
	return rows
}

func TestPositionRepositoryFindByUID(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "positions" WHERE uid = \$1`).
			WithArgs("pos-1", 1).
			WillReturnRows(positionRows(model.Position{
				ID: 7, UID: "pos-1", Archetype: "recursive_lending", Status: model.PositionStatusActive,
				DeploymentUSD: 10000, EntryTimestamp: 1700000000,
			}))

		pos, err := repo.FindByUID(context.Background(), "pos-1")
		if err != nil {
			t.Fatalf("unexpected error fetching position: %v", err)
		}
		if pos == nil || pos.ID != 7 || pos.Archetype != "recursive_lending" {
			t.Fatalf("unexpected position: %+v", pos)
		}
	})

	t.Run("not found is nil, nil", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "positions" WHERE uid = \$1`).
			WithArgs("missing", 1).
			WillReturnRows(positionRows())

		pos, err := repo.FindByUID(context.Background(), "missing")
		if err != nil {
			t.Fatalf("unexpected error for missing position: %v", err)
		}
		if pos != nil {
			t.Fatalf("expected nil position, got %+v", pos)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestPositionRepositoryFindActive(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	mock.ExpectQuery(`SELECT \* FROM "positions" WHERE status = \$1 ORDER BY entry_timestamp ASC, id ASC`).
		WithArgs(model.PositionStatusActive).
		WillReturnRows(positionRows(
			model.Position{ID: 1, UID: "pos-1", Status: model.PositionStatusActive, EntryTimestamp: 100},
			model.Position{ID: 2, UID: "pos-2", Status: model.PositionStatusActive, EntryTimestamp: 200},
		))

	positions, err := repo.FindActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error listing active positions: %v", err)
	}
	if len(positions) != 2 || positions[0].UID != "pos-1" {
		t.Fatalf("unexpected active positions: %+v", positions)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestPositionRepositoryList(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	t.Run("filters by status", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "positions" WHERE status = \$1 ORDER BY entry_timestamp DESC, id DESC`).
			WithArgs(model.PositionStatusClosed).
			WillReturnRows(positionRows(model.Position{ID: 3, UID: "pos-3", Status: model.PositionStatusClosed}))

		positions, err := repo.List(context.Background(), model.PositionStatusClosed)
		if err != nil {
			t.Fatalf("unexpected error listing positions: %v", err)
		}
		if len(positions) != 1 || positions[0].UID != "pos-3" {
			t.Fatalf("unexpected positions: %+v", positions)
		}
	})

	t.Run("no filter lists everything", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "positions" ORDER BY entry_timestamp DESC, id DESC`).
			WillReturnRows(positionRows(
				model.Position{ID: 2, UID: "pos-2"},
				model.Position{ID: 1, UID: "pos-1"},
			))

		positions, err := repo.List(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error listing positions: %v", err)
		}
		if len(positions) != 2 {
			t.Fatalf("expected 2 positions, got %d", len(positions))
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
