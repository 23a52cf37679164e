package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObservationValue(t *testing.T) {
	msg := &Observation{Category: CategoryEvent, Values: []string{"C12", "Door open"}}
	assert.Equal(t, "Door open", msg.Value())

	cond := &Observation{Category: CategoryCondition, Values: []string{"fault", "4200", "", "", "Overtemp"}}
	assert.Equal(t, "fault", cond.Value())

	unavailable := &Observation{Category: CategoryCondition, Values: []string{"unavailable", "", "", "", ""}}
	assert.True(t, unavailable.IsUnavailable())

	empty := &Observation{Category: CategoryEvent}
	assert.Equal(t, "", empty.Value())
	assert.False(t, empty.IsUnavailable())
}

func TestConditionFromObservation(t *testing.T) {
	o := &Observation{Sequence: 9, Timestamp: "TIME", Category: CategoryCondition, Values: []string{"warning", "3600", "2"}}
	c := ConditionFromObservation(o)

	assert.Equal(t, SeverityWarning, c.Severity)
	assert.Equal(t, "3600", c.NativeCode)
	assert.Equal(t, "2", c.NativeSeverity)
	assert.Equal(t, "", c.Message)
	assert.Equal(t, uint64(9), c.Sequence)
	assert.Equal(t, []string{"WARNING", "3600", "2", "", ""}, c.Values())
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("lookup: %w", DeviceNotFound("mill"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrOutOfRange))
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound, Code: CodeNoDevice}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound, Code: CodeAssetNotFound}))
	assert.Equal(t, "Could not find the device mill.", DeviceNotFound("mill").Error())
	assert.Equal(t, "Could not find asset: 7", AssetNotFound("7").Error())
}

func TestDataItemArity(t *testing.T) {
	assert.Equal(t, 5, (&DataItem{Category: CategoryCondition}).Arity())
	assert.Equal(t, 2, (&DataItem{Category: CategoryEvent, Type: TypeMessage}).Arity())
	assert.Equal(t, 1, (&DataItem{Category: CategorySample, Type: "POSITION"}).Arity())
}

func TestDeviceAllDataItems(t *testing.T) {
	d := &Device{
		DataItems: []*DataItem{{ID: "avail"}},
		Components: []*Component{
			{ID: "axes", DataItems: []*DataItem{{ID: "x"}}, Components: []*Component{
				{ID: "c", DataItems: []*DataItem{{ID: "s1"}, {ID: "rm"}}},
			}},
			{ID: "ctrl", DataItems: []*DataItem{{ID: "line"}}},
		},
	}

	var ids []string
	for _, di := range d.AllDataItems() {
		ids = append(ids, di.ID)
	}
	assert.Equal(t, []string{"avail", "x", "s1", "rm", "line"}, ids)
}

func TestContentMarkedRemoved(t *testing.T) {
	assert.True(t, ContentMarkedRemoved(`<Part assetId="P1" removed="true">TEST</Part>`))
	assert.True(t, ContentMarkedRemoved(`<?xml version="1.0"?><Part removed='true'/>`))
	assert.False(t, ContentMarkedRemoved(`<Part assetId="P1">TEST</Part>`))
	assert.False(t, ContentMarkedRemoved(`<Part><Note removed="true"/></Part>`))
	assert.False(t, ContentMarkedRemoved(`TEST 1`))
}
