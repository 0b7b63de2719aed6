package model_test

import (
	"testing"

	"github.com/kasuganosora/rotationbot/model"
	"github.com/kasuganosora/rotationbot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	rec := &model.RotationProfileRecord{
		Name:      "frost",
		ClassName: "Mage",
		Steps:     datatypes.JSON(`[{"id":116,"name":"Frostbolt"}]`),
	}
	require.NoError(t, db.Create(rec).Error)
	assert.Greater(t, rec.ID, int64(0))

	var found model.RotationProfileRecord
	require.NoError(t, db.Where("name = ?", "frost").First(&found).Error)
	assert.Equal(t, "Mage", found.ClassName)
	assert.JSONEq(t, `[{"id":116,"name":"Frostbolt"}]`, string(found.Steps))

	cl := &model.CastLog{DecisionID: "d-1", SpellID: 116, TargetGUID: "0x200", Accepted: true, Source: "rotation"}
	require.NoError(t, db.Create(cl).Error)

	var n int64
	require.NoError(t, db.Model(&model.CastLog{}).Where("spell_id = ?", 116).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestAutoMigrate_UniqueProfileName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	require.NoError(t, db.Create(&model.RotationProfileRecord{Name: "dup"}).Error)
	assert.Error(t, db.Create(&model.RotationProfileRecord{Name: "dup"}).Error)
}
