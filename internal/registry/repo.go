package registry

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-kt/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

type SnapshotRepo interface {
	// Record stores row under the next version of its model key and, when
	// activate is set, makes it the active snapshot.
	Record(dbc dbctx.Context, row *ModelSnapshot, activate bool) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*ModelSnapshot, error)
	GetLatestByKey(dbc dbctx.Context, key string) (*ModelSnapshot, error)
	GetActiveByKey(dbc dbctx.Context, key string) (*ModelSnapshot, error)
	ListByKey(dbc dbctx.Context, key string, limit int) ([]*ModelSnapshot, error)
	SetActiveByID(dbc dbctx.Context, id uuid.UUID) error
}

type snapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SnapshotRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &snapshotRepo{db: db, log: baseLog.With("repo", "SnapshotRepo")}
}

func (r *snapshotRepo) Record(dbc dbctx.Context, row *ModelSnapshot, activate bool) error {
	if row == nil || strings.TrimSpace(row.ModelKey) == "" {
		return errors.New("snapshot needs a model key")
	}
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		if err := tx.Model(&ModelSnapshot{}).
			Unscoped().
			Where("model_key = ?", row.ModelKey).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return err
		}
		row.Version = maxVersion + 1
		row.Active = false
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		if !activate {
			return nil
		}
		if err := activateTx(tx, row.ModelKey, row.ID); err != nil {
			return err
		}
		row.Active = true
		r.log.Info("snapshot activated", "model_key", row.ModelKey, "version", row.Version, "uri", row.URI)
		return nil
	})
}

func (r *snapshotRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*ModelSnapshot, error) {
	row := &ModelSnapshot{}
	if err := dbc.DB(r.db).Where("id = ?", id).First(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return row, nil
}

// GetLatestByKey returns nil, nil when the key has no snapshots.
func (r *snapshotRepo) GetLatestByKey(dbc dbctx.Context, key string) (*ModelSnapshot, error) {
	return r.first(dbc, key, false)
}

// GetActiveByKey returns nil, nil when no snapshot of the key is active.
func (r *snapshotRepo) GetActiveByKey(dbc dbctx.Context, key string) (*ModelSnapshot, error) {
	return r.first(dbc, key, true)
}

func (r *snapshotRepo) first(dbc dbctx.Context, key string, activeOnly bool) (*ModelSnapshot, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	q := dbc.DB(r.db).Where("model_key = ?", key)
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	row := &ModelSnapshot{}
	if err := q.Order("version DESC").Limit(1).First(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *snapshotRepo) ListByKey(dbc dbctx.Context, key string, limit int) ([]*ModelSnapshot, error) {
	key = strings.TrimSpace(key)
	out := []*ModelSnapshot{}
	if key == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if err := dbc.DB(r.db).
		Where("model_key = ?", key).
		Order("version DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *snapshotRepo) SetActiveByID(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrSnapshotNotFound
	}
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var row ModelSnapshot
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSnapshotNotFound
			}
			return err
		}
		return activateTx(tx, row.ModelKey, id)
	})
}

func activateTx(tx *gorm.DB, key string, id uuid.UUID) error {
	if err := tx.Model(&ModelSnapshot{}).
		Where("model_key = ? AND active = ?", key, true).
		Update("active", false).Error; err != nil {
		return err
	}
	return tx.Model(&ModelSnapshot{}).
		Where("id = ?", id).
		Update("active", true).Error
}
