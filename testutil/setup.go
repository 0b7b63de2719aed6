package testutil

import (
	"testing"

	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/config"
	dbadapter "github.com/kasuganosora/rotationbot/db"
	"github.com/kasuganosora/rotationbot/game/sim"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory sqlite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	t.Cleanup(c.Close)
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// PlayerGUID is the local player NewSimWorld creates.
const PlayerGUID world.GUID = 0x0000000000000100

// NewSimWorld returns a simulated world that is in-world with a full-health,
// full-mana local player at the origin.
func NewSimWorld(t *testing.T) *sim.World {
	t.Helper()
	w := sim.New()
	w.AddUnit(sim.UnitSpec{
		GUID:      PlayerGUID,
		Name:      "Tester",
		Player:    true,
		Level:     60,
		Health:    1000,
		MaxHealth: 1000,
		PowerType: world.PowerMana,
		Power:     map[world.PowerType]int32{world.PowerMana: 1000},
		MaxPower:  map[world.PowerType]int32{world.PowerMana: 1000},
	})
	w.SetLocalPlayer(PlayerGUID)
	w.SetInWorld(true)
	return w
}
