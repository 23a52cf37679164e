package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

func TestConditionList_OrderAndInPlaceUpdate(t *testing.T) {
	l := newConditionList()
	l.upsert(fault("4200", "Overtemp"))
	l.upsert(fault("2218", "Spindle"))
	l.upsert(models.ConditionEntry{Severity: models.SeverityWarning, NativeCode: "3600"})

	assert.Equal(t, []string{"4200", "2218", "3600"}, codes(l.list()))

	l.upsert(fault("2218", "Spindle again"))
	assert.Equal(t, []string{"4200", "2218", "3600"}, codes(l.list()))
	e, ok := l.get("2218")
	assert.True(t, ok)
	assert.Equal(t, "Spindle again", e.Message)
}

func TestConditionList_RemoveReindexes(t *testing.T) {
	l := newConditionList()
	l.upsert(fault("a", ""))
	l.upsert(fault("b", ""))
	l.upsert(fault("c", ""))

	assert.True(t, l.remove("a"))
	assert.False(t, l.remove("a"))
	assert.Equal(t, []string{"b", "c"}, codes(l.list()))

	l.upsert(fault("c", "updated"))
	assert.Equal(t, []string{"b", "c"}, codes(l.list()))
	e, _ := l.get("c")
	assert.Equal(t, "updated", e.Message)

	clone := l.clone()
	l.clear()
	assert.Equal(t, 0, l.len())
	assert.Equal(t, 2, clone.len())
}

// 辅助函数

func fault(code, msg string) models.ConditionEntry {
	return models.ConditionEntry{Severity: models.SeverityFault, NativeCode: code, Message: msg}
}

func codes(entries []models.ConditionEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.NativeCode)
	}
	return out
}
