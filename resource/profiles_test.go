package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/kasuganosora/rotationbot/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validProfile = `{
  "name": "Arms",
  "className": "Warrior",
  "steps": [
    {"id": 12294, "name": "Mortal Strike", "range": 5, "resourceType": "Rage", "resourceCost": 30},
    {"id": 5308, "name": "Execute", "range": {"min": 0, "max": 5},
     "conditions": [{"type": "HEALTH_PERCENT_BELOW", "value": 20}],
     "priorityBoosts": [{"type": "PLAYER_RESOURCE_PERCENT_ABOVE", "resourceType": "Rage", "thresholdValue": 50}]}
  ]
}`

func newLoader(t *testing.T) *ProfileLoader {
	t.Helper()
	l, err := NewProfileLoader(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return l
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// ---- Validate ----

func TestProfileLoader_Validate(t *testing.T) {
	l := newLoader(t)
	assert.NoError(t, l.Validate([]byte(validProfile)))

	cases := map[string]string{
		"missing name":     `{"steps": []}`,
		"empty name":       `{"name": "", "steps": []}`,
		"bad target type":  `{"name": "x", "steps": [{"id": 1, "name": "a", "targetType": "Sideways"}]}`,
		"negative range":   `{"name": "x", "steps": [{"id": 1, "name": "a", "range": -5}]}`,
		"zero charges":     `{"name": "x", "steps": [{"id": 1, "name": "a", "maxCharges": 0}]}`,
		"bad aura logic":   `{"name": "x", "steps": [{"id": 1, "name": "a", "conditions": [{"type": "PLAYER_HAS_AURA", "multiAuraLogic": "SOME_OF"}]}]}`,
		"expression empty": `{"name": "x", "steps": [{"id": 1, "name": "a", "conditions": [{"type": "EXPRESSION"}]}]}`,
		"not json":         `{`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := l.Validate([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, rotation.ErrInvalidProfile))
		})
	}
}

func TestProfileLoader_Parse(t *testing.T) {
	l := newLoader(t)
	p, err := l.Parse([]byte(validProfile))
	require.NoError(t, err)
	assert.Equal(t, "Arms", p.Name)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, rotation.Range{Max: 5}, p.Steps[0].Range)
	assert.Equal(t, rotation.Resource("Rage"), p.Steps[0].ResourceType)
	assert.Equal(t, 50, p.Steps[1].PriorityBoosts[0].PriorityBoost)
}

// ---- LoadAll ----

func TestProfileLoader_LoadAll(t *testing.T) {
	l := newLoader(t)
	write(t, l.Dir(), "b_arms.json", validProfile)
	write(t, l.Dir(), "a_broken.json", `{"name": 3}`)
	write(t, l.Dir(), "notes.txt", "ignored")
	path := write(t, l.Dir(), "c_fury.json", `{"name": "Fury", "steps": []}`)

	profiles, err := l.LoadAll()
	require.Error(t, err, "broken file is reported")
	assert.Contains(t, err.Error(), "a_broken.json")
	require.Len(t, profiles, 2)
	assert.Equal(t, "Arms", profiles[0].Name)
	assert.Equal(t, "Fury", profiles[1].Name)
	assert.Equal(t, path, profiles[1].FilePath)
	assert.False(t, profiles[1].LastModified.IsZero())
}

func TestProfileLoader_LoadAll_EmptyDir(t *testing.T) {
	l := newLoader(t)
	profiles, err := l.LoadAll()
	assert.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestProfileLoader_Import(t *testing.T) {
	l := newLoader(t)
	write(t, l.Dir(), "arms.json", validProfile)
	store := rotation.NewStore(testutil.SetupTestDB(t))

	n, err := l.Import(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := store.Get(context.Background(), "Arms")
	require.NoError(t, err)
	assert.Equal(t, "Warrior", p.ClassName)
	assert.Len(t, p.Steps, 2)
}
