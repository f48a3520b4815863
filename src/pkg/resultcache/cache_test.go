package resultcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shongo-go/connector/src/pkg/command"
	"github.com/shongo-go/connector/src/types"
)

var ignored = []string{"enumerateID", "lastRevision", "listAll", "authenticationUser", "authenticationPassword"}

func TestNewKey(t *testing.T) {
	a := command.New("conference.enumerate").
		Set("moreThanFour", true).
		Set("enumerateFilter", "!completed").
		Set("authenticationUser", "admin")
	b := command.New("conference.enumerate").
		Set("enumerateFilter", "!completed").
		Set("enumerateID", "page-2").
		Set("moreThanFour", true).
		Set("lastRevision", 10)

	assert.Equal(t, NewKey(a, ignored...), NewKey(b, ignored...))
	assert.Equal(t, "conference.enumerate;enumerateFilter=!completed;moreThanFour=true", NewKey(a, ignored...).String())

	c := command.New("participant.enumerate").Set("operationScope", []string{"currentState"})
	assert.Equal(t, "participant.enumerate;operationScope=[currentState]", NewKey(c, ignored...).String())
	assert.NotEqual(t, NewKey(a, ignored...), NewKey(c, ignored...))
}

func TestCache_Merge(t *testing.T) {
	cache := New(16, time.Minute, FieldIdentity("conferenceName"))
	key := NewKey(command.New("conference.enumerate"), ignored...)

	_, ok := cache.Lookup(key)
	require.False(t, ok)

	first := []Item{
		{"conferenceName": "a", "description": "room a"},
		{"conferenceName": "b", "description": "room b"},
		{"conferenceName": "c", "description": "room c"},
	}
	merged, err := cache.Merge(key, nil, 1, first)
	require.NoError(t, err)
	assert.Len(t, merged, 3)

	previous, ok := cache.Lookup(key)
	require.True(t, ok)
	assert.EqualValues(t, 1, previous.Revision)
	assert.Equal(t, 3, previous.Len())

	second := []Item{
		{"conferenceName": "a", "changed": false},
		{"conferenceName": "b", "dead": true},
		{"conferenceName": "c", "changed": true, "description": "room c v2"},
		{"conferenceName": "d", "description": "room d"},
	}
	merged, err = cache.Merge(key, previous, 2, second)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, "room a", merged[0]["description"])
	assert.Equal(t, "room c v2", merged[1]["description"])
	assert.Equal(t, "d", merged[2]["conferenceName"])

	current, ok := cache.Lookup(key)
	require.True(t, ok)
	assert.EqualValues(t, 2, current.Revision)
}

func TestCache_MergeNestedState(t *testing.T) {
	cache := New(16, time.Minute, FieldIdentity("participantName"))
	key := NewKey(command.New("participant.enumerate"), ignored...)
	_, err := cache.Merge(key, nil, 5, []Item{
		{"participantName": "1", "currentState": map[string]any{"displayName": "alice"}},
		{"participantName": "2", "currentState": map[string]any{"displayName": "bob"}},
	})
	require.NoError(t, err)
	previous, _ := cache.Lookup(key)

	merged, err := cache.Merge(key, previous, 6, []Item{
		{"participantName": "1", "currentState": map[string]any{"changed": false}},
		{"participantName": "2", "currentState": map[string]any{"dead": true}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "alice", merged[0]["currentState"].(map[string]any)["displayName"])
}

func TestCache_MergeInconsistent(t *testing.T) {
	cache := New(16, time.Minute, FieldIdentity("conferenceName"))
	key := NewKey(command.New("conference.enumerate"), ignored...)
	_, err := cache.Merge(key, nil, 1, []Item{{"conferenceName": "a"}})
	require.NoError(t, err)
	previous, _ := cache.Lookup(key)

	_, err = cache.Merge(key, previous, 2, []Item{{"conferenceName": "x", "changed": false}})
	assert.True(t, errors.Is(err, types.ErrCacheInconsistent))

	// 失败的合并不覆盖原缓存
	current, _ := cache.Lookup(key)
	assert.EqualValues(t, 1, current.Revision)
}

func TestCache_FirstEnumerationKeepsFlaggedItems(t *testing.T) {
	cache := New(16, time.Minute, FieldIdentity("conferenceName"))
	key := NewKey(command.New("conference.enumerate"), ignored...)
	merged, err := cache.Merge(key, nil, 1, []Item{{"conferenceName": "a", "changed": false}})
	require.NoError(t, err)
	assert.Len(t, merged, 1)

	cache.Forget(key)
	_, ok := cache.Lookup(key)
	assert.False(t, ok)
}
