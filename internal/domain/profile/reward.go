package profile

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTION KINDS
// ══════════════════════════════════════════════════════════════════════════════

// ActionKind - тип вознаграждаемого действия пользователя.
type ActionKind string

const (
	ActionModuleCompletion ActionKind = "module-completion"
	ActionPathCompletion   ActionKind = "path-completion"
	ActionQuizPassed       ActionKind = "quiz-passed"
	ActionDailyVisit       ActionKind = "daily-visit"
	ActionDocFeedback      ActionKind = "doc-feedback"
	ActionCodeContribution ActionKind = "code-contribution"
	ActionAnswerAccepted   ActionKind = "answer-accepted"
	ActionProfileCompleted ActionKind = "profile-completed"
	ActionReferral         ActionKind = "referral"
)

// IsValid проверяет, что действие известно движку.
func (a ActionKind) IsValid() bool {
	switch a {
	case ActionModuleCompletion, ActionPathCompletion, ActionQuizPassed,
		ActionDailyVisit, ActionDocFeedback, ActionCodeContribution,
		ActionAnswerAccepted, ActionProfileCompleted, ActionReferral:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (a ActionKind) String() string { return string(a) }

// ══════════════════════════════════════════════════════════════════════════════
// SYNC STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// SyncState - состояние транзакции в машине синхронизации с леджером.
// Допустимые переходы: local → sent → confirmed | failed | conflict,
// failed → sent (повторная отправка после временной ошибки).
// Confirmed и conflict - терминальные состояния.
type SyncState string

const (
	// SyncStateLocal - транзакция создана локально, ещё не отправлялась.
	SyncStateLocal SyncState = "local"

	// SyncStateSent - транзакция отправлена, ожидается ответ леджера.
	SyncStateSent SyncState = "sent"

	// SyncStateConfirmed - леджер подтвердил транзакцию, терминальное состояние.
	SyncStateConfirmed SyncState = "confirmed"

	// SyncStateFailed - отправка не удалась из-за временной ошибки,
	// транзакция будет отправлена повторно.
	SyncStateFailed SyncState = "failed"

	// SyncStateConflict - леджер окончательно отклонил транзакцию,
	// терминальное состояние: повторная отправка запрещена.
	SyncStateConflict SyncState = "conflict"
)

// IsValid проверяет корректность состояния.
func (s SyncState) IsValid() bool {
	switch s {
	case SyncStateLocal, SyncStateSent, SyncStateConfirmed, SyncStateFailed, SyncStateConflict:
		return true
	}
	return false
}

// IsPending возвращает true для состояний, подлежащих отправке в леджер.
func (s SyncState) IsPending() bool {
	switch s {
	case SyncStateLocal, SyncStateSent, SyncStateFailed:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода состояния.
func (s SyncState) CanTransitionTo(target SyncState) bool {
	switch s {
	case SyncStateLocal:
		return target == SyncStateSent
	case SyncStateSent:
		return target == SyncStateConfirmed || target == SyncStateFailed || target == SyncStateConflict
	case SyncStateFailed:
		return target == SyncStateSent
	case SyncStateConfirmed, SyncStateConflict:
		return false
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidBaseAmount - отрицательная базовая сумма награды.
	ErrInvalidBaseAmount = errors.New("profile: base amount must be non-negative")

	// ErrInvalidSyncTransition - недопустимый переход состояния синхронизации.
	ErrInvalidSyncTransition = errors.New("profile: invalid sync state transition")
)

// burnRate - доля награды, сжигаемая протоколом токена.
// Сжигание - учётная величина для леджера, из баланса пользователя
// она не вычитается.
const burnRate = 0.05

// RewardTransaction - начисление T4G за одно действие. Идентификатор
// генерируется локально и используется леджером для идемпотентности.
type RewardTransaction struct {
	// ID - уникальный идентификатор транзакции.
	ID string

	// ProfileID - профиль-получатель.
	ProfileID string

	// Action - вознаграждённое действие.
	Action ActionKind

	// BaseAmount - базовая сумма до множителей.
	BaseAmount Tokens

	// Multiplier - итоговый множитель на момент расчёта.
	Multiplier float64

	// FinalAmount - зачисленная сумма, floor(BaseAmount * Multiplier).
	FinalAmount Tokens

	// BurnAmount - сжигаемая протоколом часть, floor(FinalAmount * 0.05).
	BurnAmount Tokens

	// State - состояние синхронизации с леджером.
	State SyncState

	// Attempts - число попыток отправки.
	Attempts int

	// LastError - текст последней ошибки отправки, пустой при успехе.
	LastError string

	// CreatedAt - время создания.
	CreatedAt time.Time

	// ConfirmedAt - время подтверждения леджером, нулевое до подтверждения.
	ConfirmedAt time.Time
}

// TransitionTo переводит транзакцию в новое состояние с проверкой машины.
func (t *RewardTransaction) TransitionTo(target SyncState) error {
	if !t.State.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSyncTransition, t.State, target)
	}
	t.State = target
	return nil
}

// MarkSent отмечает попытку отправки.
func (t *RewardTransaction) MarkSent() error {
	if err := t.TransitionTo(SyncStateSent); err != nil {
		return err
	}
	t.Attempts++
	return nil
}

// MarkConfirmed отмечает подтверждение леджером. Повторное подтверждение
// той же транзакции - no-op: подтверждение идемпотентно по ID.
func (t *RewardTransaction) MarkConfirmed(now time.Time) error {
	if t.State == SyncStateConfirmed {
		return nil
	}
	if err := t.TransitionTo(SyncStateConfirmed); err != nil {
		return err
	}
	t.ConfirmedAt = now
	t.LastError = ""
	return nil
}

// MarkFailed отмечает неудачную попытку с сохранением причины.
func (t *RewardTransaction) MarkFailed(reason string) error {
	if err := t.TransitionTo(SyncStateFailed); err != nil {
		return err
	}
	t.LastError = reason
	return nil
}

// MarkConflicted отмечает окончательный отказ леджера. Транзакция
// выходит из очереди отправки навсегда.
func (t *RewardTransaction) MarkConflicted(reason string) error {
	if err := t.TransitionTo(SyncStateConflict); err != nil {
		return err
	}
	t.LastError = reason
	return nil
}

// IsTerminal возвращает true для подтверждённых и отклонённых транзакций.
func (t *RewardTransaction) IsTerminal() bool {
	return t.State == SyncStateConfirmed || t.State == SyncStateConflict
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// CalculateReward строит транзакцию награды из базовой суммы и метаданных.
// Функция чистая: ни профиль, ни баланс здесь не трогаются - зачисление
// и постановка в очередь выполняет ProfileStore. Округление вниз
// выполняется один раз над итоговым произведением.
func CalculateReward(profileID string, baseAmount Tokens, action ActionKind, meta ActionMetadata, now time.Time) (*RewardTransaction, error) {
	if baseAmount < 0 {
		return nil, ErrInvalidBaseAmount
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	multiplier := ComputeMultiplier(meta)
	finalAmount := Tokens(math.Floor(float64(baseAmount) * multiplier))
	burnAmount := Tokens(math.Floor(float64(finalAmount) * burnRate))

	return &RewardTransaction{
		ID:          uuid.New().String(),
		ProfileID:   profileID,
		Action:      action,
		BaseAmount:  baseAmount,
		Multiplier:  multiplier,
		FinalAmount: finalAmount,
		BurnAmount:  burnAmount,
		State:       SyncStateLocal,
		CreatedAt:   now,
	}, nil
}
