package snapshot

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is one archived snapshot row.
type Record struct {
	ID      uint      `gorm:"primaryKey"`
	TakenAt time.Time `gorm:"index;not null"`
	Payload []byte    `gorm:"type:jsonb;not null"`
}

func (Record) TableName() string { return "snapshots" }

// Archive persists snapshot images into postgres. It is an optional sink;
// the core runs fine without a DSN configured.
type Archive struct {
	db *gorm.DB
}

// OpenArchive connects and migrates the snapshots table.
func OpenArchive(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Persist stores the image as one row.
func (a *Archive) Persist(img *Image) error {
	payload, err := json.Marshal(img)
	if err != nil {
		return err
	}
	return a.db.Create(&Record{TakenAt: img.TakenAt, Payload: payload}).Error
}

// Latest loads the most recent archived image, or nil when the archive is
// empty.
func (a *Archive) Latest() (*Image, error) {
	var rec Record
	err := a.db.Order("taken_at desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var img Image
	if err := json.Unmarshal(rec.Payload, &img); err != nil {
		return nil, err
	}
	return &img, nil
}
