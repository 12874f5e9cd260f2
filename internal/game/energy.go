package game

// RefillInterval - сколько секунд восстанавливается одна единица энергии.
const RefillInterval int64 = 60

// RegenerateEnergy начисляет энергию за прошедшее с LastLogin время:
// по единице за каждый полный RefillInterval, не выше MaxEnergy.
// Неизрасходованный остаток интервала переносится (LastLogin сдвигается
// только на потраченное время), а при достижении максимума сбрасывается:
// LastLogin = now. Повторный вызов с тем же now ничего не меняет.
//
// Цикл ограничен MaxEnergy итерациями, деления нет.
// Возвращает число начисленных единиц.
func RegenerateEnergy(p *PlayerState, now int64) uint64 {
	elapsed := now - p.LastLogin
	var spent int64
	var granted uint64

	for elapsed >= RefillInterval && p.Energy < MaxEnergy {
		p.Energy++
		granted++
		elapsed -= RefillInterval
		spent += RefillInterval
	}

	if p.Energy >= MaxEnergy {
		p.LastLogin = now
	} else {
		p.LastLogin += spent
	}
	return granted
}
