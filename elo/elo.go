// Package elo реализует пересчёт рейтингов по логистической формуле
// ожидаемого счёта. Пакет не хранит состояния: K-фактор и границы
// рейтинга передаются вызывающей стороной.
package elo

import (
	"fmt"
	"math"
)

// Значения фактического счёта.
const (
	ScoreWin  = 1.0
	ScoreLoss = 0.0
	ScoreDraw = 0.5
)

// Outcome — результат одного пересчёта для пары команд.
type Outcome struct {
	NewWinner      int
	NewLoser       int
	DeltaWinner    int
	DeltaLoser     int
	ExpectedWinner float64
	ExpectedLoser  float64
}

// Bounds — допустимый диапазон рейтинга. Движок сигнализирует о выходе
// за границы, решение об ограничении или отказе принимает вызывающий.
type Bounds struct {
	Min int
	Max int
}

// RangeError возвращается, когда пересчитанный рейтинг выходит за границы.
type RangeError struct {
	Rating int
	Bounds Bounds
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("rating %d is outside the allowed range [%d, %d]", e.Rating, e.Bounds.Min, e.Bounds.Max)
}

// Expected возвращает ожидаемый счёт игрока A против игрока B:
// 1 / (1 + 10^((Rb-Ra)/400)).
func Expected(ratingA, ratingB int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingB-ratingA)/400.0))
}

// Apply пересчитывает рейтинги победителя и проигравшего с общим K.
// Округление half-away-from-zero, поэтому при общем K дельта проигравшего —
// точное зеркало дельты победителя.
func Apply(ratingWinner, ratingLoser, k int) Outcome {
	expW := Expected(ratingWinner, ratingLoser)
	expL := 1.0 - expW

	deltaW := int(math.Round(float64(k) * (ScoreWin - expW)))
	deltaL := int(math.Round(float64(k) * (ScoreLoss - expL)))

	return Outcome{
		NewWinner:      ratingWinner + deltaW,
		NewLoser:       ratingLoser + deltaL,
		DeltaWinner:    deltaW,
		DeltaLoser:     deltaL,
		ExpectedWinner: expW,
		ExpectedLoser:  expL,
	}
}

// Validate проверяет оба новых рейтинга на попадание в границы.
func (b Bounds) Validate(o Outcome) error {
	if err := b.Check(o.NewWinner); err != nil {
		return err
	}
	return b.Check(o.NewLoser)
}

// Check возвращает *RangeError, если рейтинг вне диапазона.
func (b Bounds) Check(rating int) error {
	if rating < b.Min || rating > b.Max {
		return &RangeError{Rating: rating, Bounds: b}
	}
	return nil
}

// Clamp ограничивает рейтинг границами. Отдельная операция: движок сам
// никогда не ограничивает результат Apply.
func (b Bounds) Clamp(rating int) int {
	if rating < b.Min {
		return b.Min
	}
	if rating > b.Max {
		return b.Max
	}
	return rating
}
