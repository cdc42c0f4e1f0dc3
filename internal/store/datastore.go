package store

import (
	"database/sql"
	"fmt"
	"log"
	"strconv"

	"github.com/nex-archive/nexharvest/internal/nex"
)

// DataStoreRepo writes and reads the object-store tables: metadata, tags,
// ratings, permission recipients, blob payloads and persistence slots.
type DataStoreRepo struct {
	db     *sql.DB
	logger *log.Logger
}

// NewDataStoreRepo wraps an open, migrated object-store database.
func NewDataStoreRepo(db *sql.DB, logger *log.Logger) *DataStoreRepo {
	if logger == nil {
		logger = log.Default()
	}
	return &DataStoreRepo{db: db, logger: logger}
}

// InsertMetaBatch persists one batch of metadata records with their tags,
// ratings and permission recipients, in a single transaction. A record that
// fails to insert is logged and skipped.
func (r *DataStoreRepo) InsertMetaBatch(game string, metas []nex.DataStoreMetaInfo) error {
	if len(metas) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("datastore meta insert: begin: %w", err)
	}
	defer tx.Rollback()

	insMeta, err := tx.Prepare(`INSERT INTO datastore_meta
		(game, data_id, owner_id, size, name, data_type, meta_binary,
		 permission, delete_permission, create_time, update_time, period,
		 status, referred_count, refer_data_id, flag, referred_time, expire_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("datastore meta insert: prepare: %w", err)
	}
	defer insMeta.Close()

	insTag, err := tx.Prepare(`INSERT INTO datastore_meta_tag (game, data_id, tag) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("datastore meta insert: prepare tags: %w", err)
	}
	defer insTag.Close()

	insRating, err := tx.Prepare(`INSERT INTO datastore_meta_rating
		(game, data_id, slot, total_value, count, initial_value)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("datastore meta insert: prepare ratings: %w", err)
	}
	defer insRating.Close()

	insRecipient, err := tx.Prepare(`INSERT INTO datastore_permission_recipients
		(game, data_id, is_delete, recipient)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("datastore meta insert: prepare recipients: %w", err)
	}
	defer insRecipient.Close()

	for _, m := range metas {
		if _, err := insMeta.Exec(
			game,
			m.DataID,
			strconv.FormatUint(m.OwnerID, 10),
			m.Size,
			m.Name,
			m.DataType,
			m.MetaBinary,
			m.Permission.Permission,
			m.DeletePermission.Permission,
			nullUnix(m.CreateTime),
			nullUnix(m.UpdateTime),
			m.Period,
			m.Status,
			m.ReferredCount,
			m.ReferDataID,
			m.Flag,
			nullUnix(m.ReferredTime),
			nullUnix(m.ExpireTime),
		); err != nil {
			r.logger.Printf("[store] datastore meta %s/%d: %v", game, m.DataID, err)
			continue
		}
		for _, tag := range m.Tags {
			if _, err := insTag.Exec(game, m.DataID, tag); err != nil {
				r.logger.Printf("[store] datastore tag %s/%d: %v", game, m.DataID, err)
			}
		}
		for _, rt := range m.Ratings {
			if _, err := insRating.Exec(game, m.DataID, rt.Slot, rt.TotalValue, rt.Count, rt.InitialValue); err != nil {
				r.logger.Printf("[store] datastore rating %s/%d slot %d: %v", game, m.DataID, rt.Slot, err)
			}
		}
		for _, p := range m.Permission.Recipients {
			if _, err := insRecipient.Exec(game, m.DataID, 0, strconv.FormatUint(p, 10)); err != nil {
				r.logger.Printf("[store] datastore recipient %s/%d: %v", game, m.DataID, err)
			}
		}
		for _, p := range m.DeletePermission.Recipients {
			if _, err := insRecipient.Exec(game, m.DataID, 1, strconv.FormatUint(p, 10)); err != nil {
				r.logger.Printf("[store] datastore delete recipient %s/%d: %v", game, m.DataID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("datastore meta insert: commit: %w", err)
	}
	return nil
}

// InsertData persists one fetched blob with the URL it came from.
func (r *DataStoreRepo) InsertData(game string, dataID uint64, url string, data []byte) error {
	_, err := r.db.Exec(
		`INSERT INTO datastore_data (game, data_id, error, url, data) VALUES (?, ?, NULL, ?, ?)`,
		game, dataID, url, data,
	)
	if err != nil {
		return fmt.Errorf("datastore data %s/%d: %w", game, dataID, err)
	}
	return nil
}

// InsertDataError records a blob that could not be fetched, so the id is
// never silently lost.
func (r *DataStoreRepo) InsertDataError(game string, dataID uint64, msg string) error {
	_, err := r.db.Exec(
		`INSERT INTO datastore_data (game, data_id, error, url, data) VALUES (?, ?, ?, NULL, NULL)`,
		game, dataID, msg,
	)
	if err != nil {
		return fmt.Errorf("datastore data error %s/%d: %w", game, dataID, err)
	}
	return nil
}

// MaxDataID returns the highest persisted data id for a game. ok is false
// when the game has no metadata rows yet.
func (r *DataStoreRepo) MaxDataID(game string) (id uint64, ok bool, err error) {
	var v sql.NullInt64
	err = r.db.QueryRow(`SELECT MAX(data_id) FROM datastore_meta WHERE game = ?`, game).Scan(&v)
	if err != nil {
		return 0, false, fmt.Errorf("datastore max id %s: %w", game, err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return uint64(v.Int64), true, nil
}

// UnfetchedEntries returns metadata rows that carry a payload but have no
// datastore_data row yet, neither blob nor recorded error.
func (r *DataStoreRepo) UnfetchedEntries(game string) ([]uint64, error) {
	rows, err := r.db.Query(
		`SELECT m.data_id FROM datastore_meta m
		 LEFT JOIN datastore_data d ON d.game = m.game AND d.data_id = m.data_id
		 WHERE m.game = ? AND m.size > 0 AND d.data_id IS NULL`,
		game,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore unfetched %s: %w", game, err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("datastore unfetched %s: scan: %w", game, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore unfetched %s: iterate: %w", game, err)
	}
	return ids, nil
}

// DistinctOwners returns every owner id seen in a game's metadata rows.
func (r *DataStoreRepo) DistinctOwners(game string) ([]uint64, error) {
	rows, err := r.db.Query(`SELECT DISTINCT owner_id FROM datastore_meta WHERE game = ?`, game)
	if err != nil {
		return nil, fmt.Errorf("datastore owners %s: %w", game, err)
	}
	defer rows.Close()

	var owners []uint64
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("datastore owners %s: scan: %w", game, err)
		}
		owner, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			r.logger.Printf("[store] datastore owner %s %q: %v", game, s, err)
			continue
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore owners %s: iterate: %w", game, err)
	}
	return owners, nil
}

// InsertPersistent records one resolved persistence slot.
func (r *DataStoreRepo) InsertPersistent(game string, ownerID uint64, persistenceID uint16, dataID uint64) error {
	_, err := r.db.Exec(
		`INSERT INTO datastore_persistent (game, owner_id, persistence_id, data_id) VALUES (?, ?, ?, ?)`,
		game, strconv.FormatUint(ownerID, 10), persistenceID, dataID,
	)
	if err != nil {
		return fmt.Errorf("datastore persistent %s/%d/%d: %w", game, ownerID, persistenceID, err)
	}
	return nil
}

// CountMeta returns the number of metadata rows for a game.
func (r *DataStoreRepo) CountMeta(game string) (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM datastore_meta WHERE game = ?`, game).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("datastore count %s: %w", game, err)
	}
	return n, nil
}
