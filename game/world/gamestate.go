package world

import "sync"

// Loading screen codes.
const (
	LoadingToCharSelect uint32 = 0x2
	LoadingLogout       uint32 = 0x3
	LoadingEnterWorldA  uint32 = 0xA
	LoadingEnterWorldB  uint32 = 0x10
)

const gameStateStringMax = 64

// GameStateInfo is a point-in-time copy of the client's session state.
type GameStateInfo struct {
	WorldLoaded uint32 `json:"world_loaded"`
	LoadingCode uint32 `json:"loading_code"`
	State       string `json:"state"`
}

// GameState reads the client's session globals. Update is called by the
// producer; the query methods are safe from any goroutine.
type GameState struct {
	mem Memory

	mu   sync.RWMutex
	info GameStateInfo
}

func NewGameState(p Provider) *GameState {
	return &GameState{mem: NewMemory(p), info: GameStateInfo{State: "uninitialized"}}
}

// Update re-reads all globals. Faults read as zero or an empty string.
func (gs *GameState) Update() GameStateInfo {
	info := GameStateInfo{
		WorldLoaded: gs.mem.U32(0, GlobalWorldLoaded),
		LoadingCode: gs.mem.U32(0, GlobalLoadingCode),
		State:       gs.mem.CString(0, GlobalGameStateString, gameStateStringMax),
	}
	gs.mu.Lock()
	gs.info = info
	gs.mu.Unlock()
	return info
}

func (gs *GameState) Info() GameStateInfo {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.info
}

func (gs *GameState) IsFullyInWorld() bool { return gs.Info().WorldLoaded != 0 }

func (gs *GameState) IsAtLoginScreen() bool { return gs.Info().State == "login" }

func (gs *GameState) IsAtCharSelect() bool {
	i := gs.Info()
	return i.WorldLoaded != 0 && i.LoadingCode == 0 && i.State == "charselect"
}

func (gs *GameState) IsLoadingScreen() bool {
	switch gs.Info().LoadingCode {
	case LoadingToCharSelect, LoadingLogout, LoadingEnterWorldA, LoadingEnterWorldB:
		return true
	}
	return false
}

func (gs *GameState) IsLoggingOut() bool { return gs.Info().LoadingCode == LoadingLogout }

func (gs *GameState) IsLoadingToCharSelect() bool {
	return gs.Info().LoadingCode == LoadingToCharSelect
}

func (gs *GameState) IsLoadingIntoWorld() bool {
	c := gs.Info().LoadingCode
	return c == LoadingEnterWorldA || c == LoadingEnterWorldB
}
