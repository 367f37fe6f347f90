package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kmoreau/citycab/core/model"
)

func TestFirstAvailableSelectorKeepsOrder(t *testing.T) {
	taxis := []model.Taxi{{ID: "a", X: 9, Y: 9}, {ID: "b", X: 1, Y: 1}}
	ranked := FirstAvailableSelector{}.Rank(taxis, 1, 1)
	assert.Equal(t, "a", ranked[0].ID)
	assert.Equal(t, "b", ranked[1].ID)
}

func TestNearestSelectorRanksByDistance(t *testing.T) {
	taxis := []model.Taxi{
		{ID: "far", X: 19, Y: 19},
		{ID: "near", X: 2, Y: 2},
		{ID: "mid", X: 10, Y: 10},
	}
	ranked := NearestSelector{}.Rank(taxis, 1, 1)
	assert.Equal(t, []string{"near", "mid", "far"}, []string{ranked[0].ID, ranked[1].ID, ranked[2].ID})
}

func TestNearestSelectorSingleCandidate(t *testing.T) {
	taxis := []model.Taxi{{ID: "only", X: 4, Y: 4}}
	ranked := NearestSelector{}.Rank(taxis, 1, 1)
	assert.Len(t, ranked, 1)
	assert.Equal(t, "only", ranked[0].ID)
}

func TestNewSelector(t *testing.T) {
	assert.IsType(t, NearestSelector{}, NewSelector("nearest"))
	assert.IsType(t, FirstAvailableSelector{}, NewSelector(""))
	assert.IsType(t, FirstAvailableSelector{}, NewSelector("first_available"))
}
