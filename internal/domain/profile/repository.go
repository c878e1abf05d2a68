package profile

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - долговременное хранилище профилей.
// Реализации живут в слое инфраструктуры.
type Repository interface {
	// Save сохраняет профиль целиком (upsert по ID).
	Save(ctx context.Context, p *UserProfile) error

	// FindByID возвращает профиль или ErrProfileNotFound.
	FindByID(ctx context.Context, id string) (*UserProfile, error)

	// Delete удаляет профиль. Используется только пользовательским сбросом.
	Delete(ctx context.Context, id string) error
}

// TransactionRepository - журнал транзакций наград с ограниченной историей.
type TransactionRepository interface {
	// Save сохраняет транзакцию (upsert по ID).
	Save(ctx context.Context, tx *RewardTransaction) error

	// FindPending возвращает неподтверждённые транзакции профиля
	// в порядке создания.
	FindPending(ctx context.Context, profileID string) ([]*RewardTransaction, error)

	// History возвращает последние limit транзакций профиля,
	// новые первыми.
	History(ctx context.Context, profileID string, limit int) ([]*RewardTransaction, error)

	// PruneHistory оставляет не более keep последних записей профиля.
	PruneHistory(ctx context.Context, profileID string, keep int) error

	// DeletePending удаляет неотправленные транзакции профиля.
	// Вызывается пользовательским сбросом, чтобы очередь не
	// восстановилась при следующем запуске.
	DeletePending(ctx context.Context, profileID string) error
}

// SnapshotCache - быстрый кеш снимков профиля для чтения.
// Промахи и ошибки кеша не фатальны: источник истины - Repository.
type SnapshotCache interface {
	// Set кладёт снимок с ограниченным временем жизни.
	Set(ctx context.Context, p *UserProfile, ttl time.Duration) error

	// Get возвращает снимок или (nil, nil) при промахе.
	Get(ctx context.Context, id string) (*UserProfile, error)

	// Invalidate удаляет снимок после мутации.
	Invalidate(ctx context.Context, id string) error
}
