package crdt

import (
	"cmp"
	"math"
)

// maxStep ограничивает шаг при выделении новой позиции: соседние вставки
// оставляют место для последующих вставок между ними.
const maxStep = 16

// Identifier один уровень позиции в последовательности.
type Identifier struct {
	Digit   uint32 // Digit значение разряда
	Replica uint32 // Replica реплика, выделившая разряд
}

// Position плотный идентификатор позиции элемента лога.
// Позиции сравниваются лексикографически; более короткий префикс меньше.
// Между любыми двумя различными позициями всегда можно выделить новую.
type Position []Identifier

func compareIdentifier(a, b Identifier) int {
	if c := cmp.Compare(a.Digit, b.Digit); c != 0 {
		return c
	}
	return cmp.Compare(a.Replica, b.Replica)
}

// Compare сравнивает две позиции. Возвращает -1, 0 или 1.
func (p Position) Compare(q Position) int {
	n := min(len(p), len(q))
	for i := 0; i < n; i++ {
		if c := compareIdentifier(p[i], q[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(p), len(q))
}

// Clone возвращает копию позиции.
func (p Position) Clone() Position {
	if p == nil {
		return nil
	}
	out := make(Position, len(p))
	copy(out, p)
	return out
}

// between выделяет позицию строго между p и q (p < q).
// Пустая p означает начало последовательности, пустая q означает конец.
// Последний разряд новой позиции помечается replica, поэтому
// параллельные вставки разных реплик в одно место не совпадают.
func between(p, q Position, replica uint32) Position {
	out := make(Position, 0, max(len(p), len(q))+1)

	// pEq/qEq: выделяемый префикс пока совпадает с префиксом p/q
	pEq, qEq := len(p) > 0, len(q) > 0

	for i := 0; ; i++ {
		var lo uint32
		if pEq && i < len(p) {
			lo = p[i].Digit
		}

		hi := uint32(math.MaxUint32)
		if qEq && i < len(q) {
			hi = q[i].Digit
		}

		if hi > lo && hi-lo > 1 {
			gap := hi - lo - 1
			step := min(gap, maxStep)
			return append(out, Identifier{Digit: lo + 1 + (step-1)/2, Replica: replica})
		}

		// Места на этом уровне нет, спускаемся глубже
		var next Identifier
		if pEq && i < len(p) {
			next = p[i]
		} else {
			next = Identifier{Digit: lo}
		}
		out = append(out, next)

		pEq = pEq && i < len(p) && next == p[i]
		qEq = qEq && i < len(q) && next == q[i]
	}
}
