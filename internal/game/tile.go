package game

import "fmt"

// BuildingType определяет, чем занят тайл.
type BuildingType uint8

const (
	BuildingTree    BuildingType = 0
	BuildingEmpty   BuildingType = 1
	BuildingSawmill BuildingType = 2
	BuildingMine    BuildingType = 3
)

var buildingNames = map[BuildingType]string{
	BuildingTree:    "tree",
	BuildingEmpty:   "empty",
	BuildingSawmill: "sawmill",
	BuildingMine:    "mine",
}

// String возвращает строковое представление типа постройки
func (b BuildingType) String() string {
	if name, ok := buildingNames[b]; ok {
		return name
	}
	return fmt.Sprintf("building(%d)", uint8(b))
}

// IsValid проверяет, что значение входит в перечисление.
func (b BuildingType) IsValid() bool {
	_, ok := buildingNames[b]
	return ok
}

// IsProducer - лесопилка или шахта: их можно улучшать и с них собирают ресурсы.
func (b BuildingType) IsProducer() bool {
	return b == BuildingSawmill || b == BuildingMine
}

// ParseBuildingType разбирает имя постройки ("sawmill", "mine", ...).
func ParseBuildingType(s string) (BuildingType, error) {
	for b, name := range buildingNames {
		if name == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBuildingType, s)
}

func (b BuildingType) MarshalText() ([]byte, error) {
	if !b.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBuildingType, uint8(b))
	}
	return []byte(b.String()), nil
}

func (b *BuildingType) UnmarshalText(text []byte) error {
	parsed, err := ParseBuildingType(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Tile - одна клетка поля.
// BuildingLevel имеет смысл только для лесопилки и шахты.
type Tile struct {
	BuildingType             BuildingType `json:"building_type"`
	BuildingLevel            uint8        `json:"building_level"`
	BuildingOwner            Identity     `json:"building_owner"`
	BuildingStartTime        int64        `json:"building_start_time"`
	BuildingStartUpgradeTime int64        `json:"building_start_upgrade_time"`
	BuildingStartCollectTime int64        `json:"building_start_collect_time"`
}
