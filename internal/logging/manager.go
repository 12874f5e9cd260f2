package logging

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Имена компонентов сервера. Каждому соответствует свой файл логов.
const (
	ComponentGame    = "game"
	ComponentServer  = "server"
	ComponentAuth    = "auth"
	ComponentHTTP    = "http"
	ComponentEvents  = "events"
)

// LoggerManager хранит логгеры компонентов и общие пороги уровней.
type LoggerManager struct {
	mu           sync.RWMutex
	loggers      map[string]*Logger
	consoleLevel LogLevel
	fileLevel    LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

func newLoggerManager() *LoggerManager {
	return &LoggerManager{
		loggers:      make(map[string]*Logger),
		consoleLevel: INFO,
		fileLevel:    TRACE,
	}
}

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

// GetLogger возвращает логгер компонента, создавая файл при первом обращении.
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	if logger, exists := lm.loggers[component]; exists {
		lm.mu.RUnlock()
		return logger, nil
	}
	lm.mu.RUnlock()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("логгер %s: %w", component, err)
	}
	logger.SetLevels(lm.consoleLevel, lm.fileLevel)

	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger не падает: если файл не создать, пишет только в stdout.
// Такой логгер не кэшируется, следующая попытка снова попробует открыть файл.
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err != nil {
		lm.mu.RLock()
		level := lm.consoleLevel
		lm.mu.RUnlock()
		return NewWriterLogger(component, os.Stdout, level)
	}
	return logger
}

// SetLevels задаёт пороги для уже созданных и всех будущих логгеров.
func (lm *LoggerManager) SetLevels(console, file LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.consoleLevel = console
	lm.fileLevel = file
	for _, logger := range lm.loggers {
		logger.SetLevels(console, file)
	}
}

// CloseAll закрывает файлы всех компонентов и очищает реестр.
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var errs []error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", component, err))
		}
	}

	lm.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}

// ListComponents возвращает отсортированный список компонентов
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetGameLogger() *Logger {
	return GetComponentLogger(ComponentGame)
}

func GetServerLogger() *Logger {
	return GetComponentLogger(ComponentServer)
}
