package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kasuganosora/rotationbot/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists profiles in the rotation_profiles table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// List returns every stored profile ordered by name.
func (s *Store) List(ctx context.Context) ([]*Profile, error) {
	var recs []model.RotationProfileRecord
	if err := s.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Profile, 0, len(recs))
	for i := range recs {
		p, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Get loads one profile by name.
func (s *Store) Get(ctx context.Context, name string) (*Profile, error) {
	var rec model.RotationProfileRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(&rec)
}

// Save inserts p or replaces the profile with the same name.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	rec := model.RotationProfileRecord{
		Name:      p.Name,
		ClassName: p.ClassName,
		Steps:     datatypes.JSON(steps),
		Source:    p.FilePath,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"class_name", "steps", "source", "updated_at"}),
	}).Create(&rec).Error
}

// Delete removes a profile by name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&model.RotationProfileRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func fromRecord(rec *model.RotationProfileRecord) (*Profile, error) {
	p := &Profile{
		Name:         rec.Name,
		ClassName:    rec.ClassName,
		FilePath:     rec.Source,
		LastModified: rec.UpdatedAt,
	}
	if len(rec.Steps) > 0 {
		if err := json.Unmarshal(rec.Steps, &p.Steps); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, rec.Name, err)
		}
	}
	return p, nil
}
