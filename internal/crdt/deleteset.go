package crdt

import (
	"maps"
	"slices"
	"sort"
)

// SeqRange закрытый диапазон порядковых номеров одной реплики.
type SeqRange struct {
	Start uint64
	End   uint64
}

// DeleteSet хранит идентификаторы физически удаленных элементов лога
// в виде отсортированных непересекающихся диапазонов по репликам.
// Объединение delete set'ов коммутативно, ассоциативно и идемпотентно.
type DeleteSet map[uint32][]SeqRange

// Contains проверяет, удален ли элемент с данным идентификатором.
func (d DeleteSet) Contains(id ItemID) bool {
	ranges := d[id.Replica]
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].End >= id.Seq })
	return i < len(ranges) && ranges[i].Start <= id.Seq
}

// Add добавляет идентификатор в множество.
func (d DeleteSet) Add(id ItemID) {
	d.AddRange(id.Replica, SeqRange{Start: id.Seq, End: id.Seq})
}

// AddRange добавляет диапазон, склеивая его с соседними.
func (d DeleteSet) AddRange(replica uint32, r SeqRange) {
	if r.End < r.Start {
		return
	}

	ranges := d[replica]
	// первый диапазон, который может пересечься или примыкать к r
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].End == ^uint64(0) || ranges[i].End+1 >= r.Start
	})

	j := i
	for j < len(ranges) && (r.End == ^uint64(0) || ranges[j].Start <= r.End+1) {
		r.Start = min(r.Start, ranges[j].Start)
		r.End = max(r.End, ranges[j].End)
		j++
	}

	d[replica] = slices.Replace(ranges, i, j, r)
}

// Merge добавляет в множество все диапазоны other.
func (d DeleteSet) Merge(other DeleteSet) {
	for replica, ranges := range other {
		for _, r := range ranges {
			d.AddRange(replica, r)
		}
	}
}

// Clone возвращает копию множества.
func (d DeleteSet) Clone() DeleteSet {
	out := make(DeleteSet, len(d))
	for replica, ranges := range d {
		out[replica] = slices.Clone(ranges)
	}
	return out
}

// Replicas возвращает отсортированный список реплик множества.
func (d DeleteSet) Replicas() []uint32 {
	return slices.Sorted(maps.Keys(d))
}

// Len возвращает количество удаленных идентификаторов.
func (d DeleteSet) Len() uint64 {
	var n uint64
	for _, ranges := range d {
		for _, r := range ranges {
			n += r.End - r.Start + 1
		}
	}
	return n
}
