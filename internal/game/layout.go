package game

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Размеры записей фиксированной раскладки (little-endian):
// тайл 58, поле 5832, действие 133, журнал 4006, мир 9850 байт.
const (
	TileSize          = 1 + 1 + IdentitySize + 8 + 8 + 8
	BoardSize         = BoardSizeX*BoardSizeY*TileSize + 4*8
	GameActionSize    = 8 + 1 + 1 + 1 + TileSize + 2*IdentitySize
	ActionHistorySize = 8 + 8 + HistoryCapacity*GameActionSize
	WorldSize         = 4 + 8 + BoardSize + ActionHistorySize

	// без байтов имени
	playerFixedSize = 2*IdentitySize + 4 + 1 + 8 + 8 + 8
	worldMagic      = uint32('L') | uint32('J')<<8 | uint32('W')<<16 | uint32('1')<<24
)

var (
	ErrShortBuffer = errors.New("layout: short buffer")
	ErrBadMagic    = errors.New("layout: bad world magic")
	// ErrCorruptRecord - значение поля вне допустимого диапазона.
	ErrCorruptRecord = errors.New("layout: corrupt record")
)

var le = binary.LittleEndian

// PutTile пишет тайл в buf[:TileSize].
func PutTile(buf []byte, t *Tile) {
	_ = buf[TileSize-1]
	buf[0] = byte(t.BuildingType)
	buf[1] = t.BuildingLevel
	copy(buf[2:34], t.BuildingOwner[:])
	le.PutUint64(buf[34:], uint64(t.BuildingStartTime))
	le.PutUint64(buf[42:], uint64(t.BuildingStartUpgradeTime))
	le.PutUint64(buf[50:], uint64(t.BuildingStartCollectTime))
}

// ReadTile читает тайл из buf[:TileSize].
func ReadTile(buf []byte) (Tile, error) {
	if len(buf) < TileSize {
		return Tile{}, ErrShortBuffer
	}
	var t Tile
	t.BuildingType = BuildingType(buf[0])
	if !t.BuildingType.IsValid() {
		return Tile{}, fmt.Errorf("layout: %w: %d", ErrInvalidBuildingType, buf[0])
	}
	t.BuildingLevel = buf[1]
	copy(t.BuildingOwner[:], buf[2:34])
	t.BuildingStartTime = int64(le.Uint64(buf[34:]))
	t.BuildingStartUpgradeTime = int64(le.Uint64(buf[42:]))
	t.BuildingStartCollectTime = int64(le.Uint64(buf[50:]))
	return t, nil
}

func putBoard(buf []byte, b *Board) {
	off := 0
	for x := 0; x < BoardSizeX; x++ {
		for y := 0; y < BoardSizeY; y++ {
			PutTile(buf[off:], &b.Tiles[x][y])
			off += TileSize
		}
	}
	le.PutUint64(buf[off:], b.ActionID)
	le.PutUint64(buf[off+8:], b.Wood)
	le.PutUint64(buf[off+16:], b.Stone)
	le.PutUint64(buf[off+24:], b.DamLevel)
}

func readBoard(buf []byte, b *Board) error {
	off := 0
	for x := 0; x < BoardSizeX; x++ {
		for y := 0; y < BoardSizeY; y++ {
			t, err := ReadTile(buf[off:])
			if err != nil {
				return fmt.Errorf("tile (%d,%d): %w", x, y, err)
			}
			b.Tiles[x][y] = t
			off += TileSize
		}
	}
	b.ActionID = le.Uint64(buf[off:])
	b.Wood = le.Uint64(buf[off+8:])
	b.Stone = le.Uint64(buf[off+16:])
	b.DamLevel = le.Uint64(buf[off+24:])
	return nil
}

// MarshalBinary кодирует поле (BoardSize байт).
func (b *Board) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BoardSize)
	putBoard(buf, b)
	return buf, nil
}

func (b *Board) UnmarshalBinary(data []byte) error {
	if len(data) != BoardSize {
		return fmt.Errorf("%w: board %d байт, ожидается %d", ErrShortBuffer, len(data), BoardSize)
	}
	return readBoard(data, b)
}

// PutGameAction пишет действие в buf[:GameActionSize].
func PutGameAction(buf []byte, a *GameAction) {
	_ = buf[GameActionSize-1]
	le.PutUint64(buf[0:], a.ActionID)
	buf[8] = byte(a.ActionType)
	buf[9] = a.X
	buf[10] = a.Y
	PutTile(buf[11:], &a.Tile)
	copy(buf[69:101], a.Player[:])
	copy(buf[101:133], a.Avatar[:])
}

// ReadGameAction читает действие из buf[:GameActionSize].
func ReadGameAction(buf []byte) (GameAction, error) {
	if len(buf) < GameActionSize {
		return GameAction{}, ErrShortBuffer
	}
	var a GameAction
	a.ActionID = le.Uint64(buf[0:])
	a.ActionType = ActionType(buf[8])
	if !a.ActionType.IsValid() {
		return GameAction{}, fmt.Errorf("%w: action type %d", ErrCorruptRecord, buf[8])
	}
	a.X = buf[9]
	a.Y = buf[10]
	tile, err := ReadTile(buf[11:])
	if err != nil {
		return GameAction{}, err
	}
	a.Tile = tile
	copy(a.Player[:], buf[69:101])
	copy(a.Avatar[:], buf[101:133])
	return a, nil
}

func putHistory(buf []byte, h *ActionHistory) {
	le.PutUint64(buf[0:], h.ActionIndex)
	le.PutUint64(buf[8:], h.Len)
	off := 16
	for i := range h.Entries {
		PutGameAction(buf[off:], &h.Entries[i])
		off += GameActionSize
	}
}

func readHistory(buf []byte, h *ActionHistory) error {
	h.ActionIndex = le.Uint64(buf[0:])
	h.Len = le.Uint64(buf[8:])
	if h.ActionIndex >= HistoryCapacity || h.Len > HistoryCapacity {
		return fmt.Errorf("%w: журнал index=%d, len=%d", ErrCorruptRecord, h.ActionIndex, h.Len)
	}
	off := 16
	for i := range h.Entries {
		a, err := ReadGameAction(buf[off:])
		if err != nil {
			return fmt.Errorf("history entry %d: %w", i, err)
		}
		h.Entries[i] = a
		off += GameActionSize
	}
	return nil
}

// MarshalBinary кодирует журнал (ActionHistorySize байт).
func (h *ActionHistory) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ActionHistorySize)
	putHistory(buf, h)
	return buf, nil
}

func (h *ActionHistory) UnmarshalBinary(data []byte) error {
	if len(data) != ActionHistorySize {
		return fmt.Errorf("%w: history %d байт, ожидается %d", ErrShortBuffer, len(data), ActionHistorySize)
	}
	return readHistory(data, h)
}

// MarshalBinary кодирует мир: magic, версия, поле, журнал.
func (w *World) MarshalBinary() ([]byte, error) {
	buf := make([]byte, WorldSize)
	le.PutUint32(buf[0:], worldMagic)
	le.PutUint64(buf[4:], w.Version)
	putBoard(buf[12:], &w.Board)
	putHistory(buf[12+BoardSize:], &w.History)
	return buf, nil
}

func (w *World) UnmarshalBinary(data []byte) error {
	if len(data) != WorldSize {
		return fmt.Errorf("%w: world %d байт, ожидается %d", ErrShortBuffer, len(data), WorldSize)
	}
	if le.Uint32(data[0:]) != worldMagic {
		return ErrBadMagic
	}
	var decoded World
	decoded.Version = le.Uint64(data[4:])
	if err := readBoard(data[12:], &decoded.Board); err != nil {
		return err
	}
	if err := readHistory(data[12+BoardSize:], &decoded.History); err != nil {
		return err
	}
	*w = decoded
	return nil
}

// MarshalBinary кодирует игрока. Длина записи зависит от длины имени.
func (p *PlayerState) MarshalBinary() ([]byte, error) {
	if len(p.Name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %d байт", ErrInvalidName, len(p.Name))
	}
	buf := make([]byte, playerFixedSize+len(p.Name))
	copy(buf[0:32], p.Authority[:])
	copy(buf[32:64], p.Avatar[:])
	le.PutUint32(buf[64:], uint32(len(p.Name)))
	off := 68 + copy(buf[68:], p.Name)
	buf[off] = p.Level
	le.PutUint64(buf[off+1:], p.XP)
	le.PutUint64(buf[off+9:], p.Energy)
	le.PutUint64(buf[off+17:], uint64(p.LastLogin))
	return buf, nil
}

func (p *PlayerState) UnmarshalBinary(data []byte) error {
	if len(data) < playerFixedSize {
		return ErrShortBuffer
	}
	n := int(le.Uint32(data[64:]))
	if n > MaxNameLength {
		return fmt.Errorf("%w: %d байт", ErrInvalidName, n)
	}
	if len(data) != playerFixedSize+n {
		return fmt.Errorf("%w: player %d байт, ожидается %d", ErrShortBuffer, len(data), playerFixedSize+n)
	}
	var decoded PlayerState
	copy(decoded.Authority[:], data[0:32])
	copy(decoded.Avatar[:], data[32:64])
	decoded.Name = string(data[68 : 68+n])
	off := 68 + n
	decoded.Level = data[off]
	decoded.XP = le.Uint64(data[off+1:])
	decoded.Energy = le.Uint64(data[off+9:])
	decoded.LastLogin = int64(le.Uint64(data[off+17:]))
	if decoded.Energy > MaxEnergy {
		return fmt.Errorf("%w: energy %d > %d", ErrCorruptRecord, decoded.Energy, MaxEnergy)
	}
	*p = decoded
	return nil
}
