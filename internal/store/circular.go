package store

import "github.com/harrywg/mtconnect-agent/internal/models"

// circularBuffer 固定容量环形缓冲区，槽位 = sequence % size
type circularBuffer struct {
	slots []*models.Observation
	size  uint64
	first uint64 // 最早保留的序列号
	next  uint64 // 下一个待分配的序列号
}

func newCircularBuffer(size int) *circularBuffer {
	if size < 1 {
		size = 1
	}
	return &circularBuffer{
		slots: make([]*models.Observation, size),
		size:  uint64(size),
		first: 1,
		next:  1,
	}
}

// append 分配序列号并写入；满时返回被覆盖的最旧观测值
func (b *circularBuffer) append(obs *models.Observation) (uint64, *models.Observation) {
	seq := b.next
	obs.Sequence = seq
	idx := seq % b.size

	var evicted *models.Observation
	if b.next-b.first == b.size {
		evicted = b.slots[idx]
		b.first++
	}
	b.slots[idx] = obs
	b.next++
	return seq, evicted
}

func (b *circularBuffer) get(seq uint64) *models.Observation {
	if seq < b.first || seq >= b.next {
		return nil
	}
	return b.slots[seq%b.size]
}

func (b *circularBuffer) lastSequence() uint64 {
	return b.next - 1
}

func (b *circularBuffer) len() int {
	return int(b.next - b.first)
}

// rangeFrom 返回 [from, from+count) 且不超过 lastSequence 的观测值
func (b *circularBuffer) rangeFrom(from uint64, count int) ([]*models.Observation, error) {
	if from < b.first {
		return nil, models.NewError(models.KindOutOfRange, models.CodeOutOfRange,
			"'from' must be greater than or equal to %d.", b.first)
	}
	if from > b.next {
		return nil, models.NewError(models.KindOutOfRange, models.CodeOutOfRange,
			"'from' must be less than or equal to %d.", b.next)
	}
	if count <= 0 {
		return nil, nil
	}

	end := from + uint64(count)
	if end > b.next {
		end = b.next
	}
	out := make([]*models.Observation, 0, end-from)
	for seq := from; seq < end; seq++ {
		out = append(out, b.slots[seq%b.size])
	}
	return out, nil
}
