package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/annel0/lumberjack/internal/game"
)

// runStoreSuite проверяет общий контракт Store для любой реализации.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()
	alice := game.Identity{0xA1}

	t.Run("Load Missing World", func(t *testing.T) {
		_, err := store.LoadWorld(ctx, "missing")
		if !errors.Is(err, ErrWorldNotFound) {
			t.Fatalf("Ожидалась ErrWorldNotFound, получено: %v", err)
		}
	})

	t.Run("Load Or Create World", func(t *testing.T) {
		w, err := store.LoadOrCreateWorld(ctx, "")
		if err != nil {
			t.Fatalf("Ошибка создания мира: %v", err)
		}
		if w.Version != 0 || w.Board.Tiles[5][5].BuildingType != game.BuildingTree {
			t.Errorf("Новый мир должен быть полем деревьев версии 0: %+v", w.Board.Tiles[5][5])
		}

		again, err := store.LoadOrCreateWorld(ctx, game.DefaultWorldKey)
		if err != nil {
			t.Fatalf("Ошибка повторной загрузки мира: %v", err)
		}
		if *again != *w {
			t.Error("Повторный вызов должен вернуть тот же мир")
		}
	})

	t.Run("Create Player", func(t *testing.T) {
		p, _ := game.NewPlayer(alice, game.Identity{0xA2}, "alice", 1000)
		if err := store.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("Ошибка создания игрока: %v", err)
		}
		err := store.CreatePlayer(ctx, p)
		if !errors.Is(err, ErrPlayerExists) {
			t.Fatalf("Повторное создание должно вернуть ErrPlayerExists, получено: %v", err)
		}

		loaded, err := store.GetPlayer(ctx, alice)
		if err != nil {
			t.Fatalf("Ошибка загрузки игрока: %v", err)
		}
		if *loaded != *p {
			t.Errorf("Неверный игрок: ожидался %+v, получен %+v", p, loaded)
		}

		_, err = store.GetPlayer(ctx, game.Identity{0xFF})
		if !errors.Is(err, ErrPlayerNotFound) {
			t.Errorf("Ожидалась ErrPlayerNotFound, получено: %v", err)
		}
	})

	t.Run("Commit", func(t *testing.T) {
		w, err := store.LoadOrCreateWorld(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		p, err := store.GetPlayer(ctx, alice)
		if err != nil {
			t.Fatal(err)
		}

		next := w.Clone()
		if _, err := next.Apply(game.Move{Type: game.ActionChop, X: 2, Y: 3}, game.Actor{Player: alice, Now: 1001}, game.StrictRules); err != nil {
			t.Fatal(err)
		}
		next.Version = w.Version + 1
		p.Energy--

		if err := store.Commit(ctx, Commit{World: next, ExpectedVersion: w.Version, Player: p}); err != nil {
			t.Fatalf("Ошибка коммита: %v", err)
		}

		stored, _ := store.LoadWorld(ctx, "")
		if *stored != *next {
			t.Error("Сохранённый мир не совпадает с записанным")
		}
		storedPlayer, _ := store.GetPlayer(ctx, alice)
		if storedPlayer.Energy != game.MaxEnergy-1 {
			t.Errorf("Энергия: ожидалось %d, получено %d", game.MaxEnergy-1, storedPlayer.Energy)
		}

		// Устаревшая версия: ничего не пишется, включая игрока
		stale := w.Clone()
		stale.Version = w.Version + 1
		p.Energy = 1
		err = store.Commit(ctx, Commit{World: stale, ExpectedVersion: w.Version, Player: p})
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("Ожидалась ErrVersionConflict, получено: %v", err)
		}
		storedPlayer, _ = store.GetPlayer(ctx, alice)
		if storedPlayer.Energy != game.MaxEnergy-1 {
			t.Error("Отклонённый коммит не должен менять игрока")
		}
	})

	t.Run("Commit Expected Player", func(t *testing.T) {
		read, err := store.GetPlayer(ctx, alice)
		if err != nil {
			t.Fatal(err)
		}
		expected := *read

		// Другой писатель успел потратить энергию
		other := *read
		other.Energy--
		if err := store.Commit(ctx, Commit{Player: &other, ExpectedPlayer: &expected}); err != nil {
			t.Fatalf("Коммит по актуальной записи должен пройти: %v", err)
		}

		stale := expected
		stale.Energy = game.MaxEnergy
		stale.LastLogin += 60
		err = store.Commit(ctx, Commit{Player: &stale, ExpectedPlayer: &expected})
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("Устаревшая запись игрока: ожидалась ErrVersionConflict, получено: %v", err)
		}
		stored, _ := store.GetPlayer(ctx, alice)
		if stored.Energy != other.Energy || stored.LastLogin != other.LastLogin {
			t.Errorf("Отклонённый коммит изменил игрока: %+v", stored)
		}

		// Мир тоже не пишется, если не сошёлся игрок
		w, _ := store.LoadWorld(ctx, "")
		next := w.Clone()
		next.Version = w.Version + 1
		err = store.Commit(ctx, Commit{World: next, ExpectedVersion: w.Version, Player: &stale, ExpectedPlayer: &expected})
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("Ожидалась ErrVersionConflict, получено: %v", err)
		}
		if again, _ := store.LoadWorld(ctx, ""); again.Version != w.Version {
			t.Errorf("Версия мира изменилась: %d", again.Version)
		}

		mismatched := Commit{Player: &other, ExpectedPlayer: &game.PlayerState{Authority: game.Identity{0x01}}}
		if err := store.Commit(ctx, mismatched); err == nil {
			t.Error("ExpectedPlayer другого игрока должен быть отклонён")
		}
	})

	t.Run("Commit Unknown Player", func(t *testing.T) {
		ghost := &game.PlayerState{Authority: game.Identity{0x99}}
		err := store.Commit(ctx, Commit{Player: ghost})
		if !errors.Is(err, ErrPlayerNotFound) {
			t.Errorf("Ожидалась ErrPlayerNotFound, получено: %v", err)
		}
	})

	t.Run("Commit Validation", func(t *testing.T) {
		if err := store.Commit(ctx, Commit{}); err == nil {
			t.Error("Пустой коммит должен быть отклонён")
		}
		w := game.NewWorld()
		if err := store.Commit(ctx, Commit{World: w, ExpectedVersion: 5}); err == nil {
			t.Error("Версия мира должна быть ExpectedVersion+1")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	runStoreSuite(t, store)

	if store.PlayerCount() != 1 {
		t.Errorf("Ожидался 1 игрок, получено %d", store.PlayerCount())
	}
}

func TestBadgerStore(t *testing.T) {
	for _, compress := range []bool{false, true} {
		store, err := NewBadgerStore(t.TempDir(), compress)
		if err != nil {
			t.Fatalf("Не удалось создать хранилище: %v", err)
		}
		runStoreSuite(t, store)

		count, err := store.PlayerCount()
		if err != nil || count != 1 {
			t.Errorf("Ожидался 1 игрок, получено %d (%v)", count, err)
		}
		store.Close()
	}
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStore(dir, true)
	if err != nil {
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}
	w, _ := store.LoadOrCreateWorld(ctx, "")
	next := w.Clone()
	next.Board.Wood = 42
	next.Version = 1
	if err := store.Commit(ctx, Commit{World: next, ExpectedVersion: 0}); err != nil {
		t.Fatalf("Ошибка коммита: %v", err)
	}
	store.Close()

	if _, err := store.LoadWorld(ctx, ""); err == nil {
		t.Error("Закрытое хранилище не должно отвечать")
	}

	reopened, err := NewBadgerStore(dir, true)
	if err != nil {
		t.Fatalf("Не удалось открыть хранилище повторно: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadWorld(ctx, "")
	if err != nil {
		t.Fatalf("Ошибка загрузки мира: %v", err)
	}
	if loaded.Board.Wood != 42 || loaded.Version != 1 {
		t.Errorf("Мир не пережил перезапуск: wood=%d version=%d", loaded.Board.Wood, loaded.Version)
	}
}

// TestMariaStore требует запущенную MariaDB (LUMBERJACK_TEST_MARIADB_DSN).
func TestMariaStore(t *testing.T) {
	dsn := os.Getenv("LUMBERJACK_TEST_MARIADB_DSN")
	if dsn == "" {
		t.Skip("LUMBERJACK_TEST_MARIADB_DSN не задан, пропускаем тест MariaDB")
	}

	store, err := NewMariaStore(dsn)
	if err != nil {
		t.Skipf("MariaDB недоступна: %v", err)
	}
	defer store.Close()

	// Чистим таблицы от прошлых запусков
	store.db.Exec(`DELETE FROM lumberjack_players`)
	store.db.Exec(`DELETE FROM lumberjack_worlds`)

	runStoreSuite(t, store)
}
