package game

import "fmt"

// Rules переключает проверки, по которым расходились две версии логики действий.
type Rules struct {
	Name string
	// EnforceCollectCooldown требует CollectCooldown секунд между сборами.
	EnforceCollectCooldown bool
	// EnforceUpgradeType разрешает улучшать только лесопилку и шахту.
	EnforceUpgradeType bool
}

var (
	// StrictRules - канонический набор: все проверки включены.
	StrictRules = Rules{Name: "strict", EnforceCollectCooldown: true, EnforceUpgradeType: true}
	// LegacyRules повторяет упрощённую логику: без кулдауна сбора и без проверки типа при улучшении.
	LegacyRules = Rules{Name: "legacy"}
)

// ParseRules возвращает набор правил по имени. Пустое имя - strict.
func ParseRules(name string) (Rules, error) {
	switch name {
	case "", StrictRules.Name:
		return StrictRules, nil
	case LegacyRules.Name:
		return LegacyRules, nil
	default:
		return Rules{}, fmt.Errorf("неизвестный набор правил %q (ожидается strict или legacy)", name)
	}
}
