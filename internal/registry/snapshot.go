// Package registry records trained checkpoints and which one serves.
package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ModelSnapshot is one persisted checkpoint of a model key ("dkt",
// "dkt+"). At most one snapshot per key is active.
type ModelSnapshot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	ModelKey string `gorm:"column:model_key;not null;index:idx_model_snapshot,unique,priority:1" json:"model_key"`
	Version  int    `gorm:"column:version;not null;index:idx_model_snapshot,unique,priority:2" json:"version"`
	Active   bool   `gorm:"column:active;not null;default:false;index" json:"active"`

	URI         string  `gorm:"column:uri;not null" json:"uri"`
	Fingerprint string  `gorm:"column:fingerprint" json:"fingerprint"`
	Epoch       int     `gorm:"column:epoch" json:"epoch"`
	AUC         float64 `gorm:"column:auc" json:"auc"`
	LossMean    float64 `gorm:"column:loss_mean" json:"loss_mean"`

	ParamsJSON  datatypes.JSON `gorm:"column:params_json" json:"params_json"`
	MetricsJSON datatypes.JSON `gorm:"column:metrics_json" json:"metrics_json"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ModelSnapshot) TableName() string { return "kt_model_snapshot" }

func (s *ModelSnapshot) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
