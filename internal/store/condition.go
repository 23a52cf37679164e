package store

import "github.com/harrywg/mtconnect-agent/internal/models"

// conditionList 按首次出现顺序保存活动条件，原地更新不改变位置
type conditionList struct {
	entries []models.ConditionEntry
	index   map[string]int
}

func newConditionList() *conditionList {
	return &conditionList{index: make(map[string]int)}
}

func (l *conditionList) get(code string) (models.ConditionEntry, bool) {
	i, ok := l.index[code]
	if !ok {
		return models.ConditionEntry{}, false
	}
	return l.entries[i], true
}

func (l *conditionList) upsert(e models.ConditionEntry) {
	if i, ok := l.index[e.NativeCode]; ok {
		l.entries[i] = e
		return
	}
	l.index[e.NativeCode] = len(l.entries)
	l.entries = append(l.entries, e)
}

func (l *conditionList) remove(code string) bool {
	i, ok := l.index[code]
	if !ok {
		return false
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	delete(l.index, code)
	for j := i; j < len(l.entries); j++ {
		l.index[l.entries[j].NativeCode] = j
	}
	return true
}

func (l *conditionList) clear() {
	l.entries = nil
	l.index = make(map[string]int)
}

func (l *conditionList) len() int {
	return len(l.entries)
}

func (l *conditionList) list() []models.ConditionEntry {
	return append([]models.ConditionEntry(nil), l.entries...)
}

func (l *conditionList) clone() *conditionList {
	c := &conditionList{
		entries: append([]models.ConditionEntry(nil), l.entries...),
		index:   make(map[string]int, len(l.index)),
	}
	for k, v := range l.index {
		c.index[k] = v
	}
	return c
}
