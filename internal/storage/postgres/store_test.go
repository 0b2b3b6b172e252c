package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"listsync/backend/internal/domain"
	"listsync/backend/internal/storage"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	require.NoError(t, err)

	return NewStoreWithDB(db), mock
}

var mailingListColumns = []string{
	"id", "domain_id", "domain_name", "name", "admin_email", "admin_password",
	"status", "last_error", "failed_status", "created_at", "updated_at",
}

func TestStore_ListPendingMailingLists(t *testing.T) {
	store, mock := setupMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "mailing_lists" WHERE status IN \(\$1,\$2,\$3,\$4,\$5\) ORDER BY created_at, id`).
		WillReturnRows(sqlmock.NewRows(mailingListColumns).
			AddRow("list-1", 1, "example.com", "foo", "owner@example.com", "sealed", "create-pending", nil, "", now, now).
			AddRow("list-2", 1, "example.com", "bar", "owner@example.com", "sealed", "delete-pending", nil, "", now, now))

	lists, err := store.ListPendingMailingLists()

	require.NoError(t, err)
	require.Len(t, lists, 2)
	assert.Equal(t, "foo", lists[0].Name)
	assert.Equal(t, domain.MailingListStatusCreatePending, lists[0].Status)
	assert.Equal(t, domain.MailingListStatusDeletePending, lists[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetMailingList(t *testing.T) {
	t.Run("不存在返回存储错误", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectQuery(`SELECT \* FROM "mailing_lists" WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(mailingListColumns))

		_, err := store.GetMailingList("missing")

		assert.ErrorIs(t, err, storage.ErrMailingListNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_UpdateMailingListStatus(t *testing.T) {
	t.Run("写入失败状态", func(t *testing.T) {
		store, mock := setupMockStore(t)
		message := "newlist: exit status 1"

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "mailing_lists" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.UpdateMailingListStatus("list-1", domain.MailingListStatusUpdate{
			Status:       domain.MailingListStatusFailed,
			LastError:    &message,
			FailedStatus: domain.MailingListStatusCreatePending,
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("行不存在", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "mailing_lists" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := store.UpdateMailingListStatus("missing", domain.MailingListStatusUpdate{Status: domain.MailingListStatusOK})

		assert.ErrorIs(t, err, storage.ErrMailingListNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("数据库错误直接返回", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "mailing_lists" SET`).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.UpdateMailingListStatus("list-1", domain.MailingListStatusUpdate{Status: domain.MailingListStatusOK})

		assert.EqualError(t, err, "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeleteMailingList(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "mailing_lists" WHERE id = \$1`).
		WithArgs("list-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, store.DeleteMailingList("list-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReplaceOwnedDNSRecords(t *testing.T) {
	listID := "list-1"
	newRecord := func() *domain.DNSRecord {
		return &domain.DNSRecord{
			DomainID:    1,
			Name:        "lists.example.com.",
			Class:       "IN",
			Type:        "A",
			Data:        "192.0.2.10",
			TTL:         3600,
			OwnedBy:     domain.DNSRecordOwnerMailingList,
			OwnerListID: &listID,
		}
	}

	t.Run("事务内替换记录并标记区域", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "dns_records" WHERE domain_id = \$1 AND owned_by = \$2`).
			WithArgs(1, "mailing_list").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO "dns_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectExec(`UPDATE "hosted_domains" SET "dns_dirty"=\$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		record := newRecord()
		err := store.ReplaceOwnedDNSRecords(record)

		require.NoError(t, err)
		assert.Equal(t, uint(7), record.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("域名不存在时回滚", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "dns_records"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`INSERT INTO "dns_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
		mock.ExpectExec(`UPDATE "hosted_domains"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.ReplaceOwnedDNSRecords(newRecord())

		assert.ErrorIs(t, err, storage.ErrHostedDomainNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("插入失败时回滚", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "dns_records"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO "dns_records"`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := store.ReplaceOwnedDNSRecords(newRecord())

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_RemoveOwnedDNSRecords(t *testing.T) {
	t.Run("删除并返回被删除的记录", func(t *testing.T) {
		store, mock := setupMockStore(t)
		now := time.Now().UTC()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "dns_records" WHERE domain_id = \$1 AND owned_by = \$2`).
			WithArgs(1, "mailing_list").
			WillReturnRows(sqlmock.NewRows([]string{"id", "domain_id", "name", "class", "type", "data", "ttl", "owned_by", "owner_list_id", "created_at"}).
				AddRow(7, 1, "lists.example.com.", "IN", "A", "192.0.2.10", 3600, "mailing_list", "list-1", now))
		mock.ExpectExec(`DELETE FROM "dns_records" WHERE domain_id = \$1 AND owned_by = \$2`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "hosted_domains" SET "dns_dirty"=\$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		removed, err := store.RemoveOwnedDNSRecords(1, domain.DNSRecordOwnerMailingList)

		require.NoError(t, err)
		require.Len(t, removed, 1)
		assert.Equal(t, "lists.example.com.", removed[0].Name)
		assert.Equal(t, "192.0.2.10", removed[0].Data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("没有记录时仍标记区域", func(t *testing.T) {
		store, mock := setupMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "dns_records"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(`UPDATE "hosted_domains" SET "dns_dirty"=\$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		removed, err := store.RemoveOwnedDNSRecords(1, domain.DNSRecordOwnerMailingList)

		require.NoError(t, err)
		assert.Empty(t, removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
