package ranking

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

func sub(id string, mt entities.MatchType, score int, stock int64, price string) entities.Substitute {
	return entities.Substitute{
		DrugID:         id,
		Name:           "Drug " + id,
		MatchType:      mt,
		MatchScore:     score,
		AvailableStock: stock,
		Price:          decimal.RequireFromString(price),
	}
}

func ids(subs []entities.Substitute) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.DrugID
	}
	return out
}

func TestRank_ExactBeforePartial(t *testing.T) {
	subs := []entities.Substitute{
		sub("p", entities.MatchPartial, 100, 500, "1"),
		sub("e", entities.MatchExact, 100, 0, "99"),
	}
	assert.Equal(t, []string{"e", "p"}, ids(Rank(subs, entities.Drug{})))
}

func TestRank_ScoreThenStock(t *testing.T) {
	subs := []entities.Substitute{
		sub("p70", entities.MatchPartial, 70, 100, "5"),
		sub("p90-out", entities.MatchPartial, 90, 0, "5"),
		sub("p90-low", entities.MatchPartial, 90, 3, "5"),
		sub("p90-high", entities.MatchPartial, 90, 50, "5"),
	}
	assert.Equal(t, []string{"p90-high", "p90-low", "p90-out", "p70"}, ids(Rank(subs, entities.Drug{})))
}

func TestRank_PriceThenManufacturerThenName(t *testing.T) {
	a := sub("a", entities.MatchExact, 100, 10, "12.50")
	b := sub("b", entities.MatchExact, 100, 10, "9.99")
	c := sub("c", entities.MatchExact, 100, 10, "12.5")
	c.Manufacturer = "Cipla"
	d := sub("d", entities.MatchExact, 100, 10, "12.5")
	d.Name = "Aaa"

	source := entities.Drug{Manufacturer: " cipla"}
	assert.Equal(t, []string{"b", "c", "d", "a"}, ids(Rank([]entities.Substitute{a, b, c, d}, source)))

	// Unknown source manufacturer skips the manufacturer key.
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(Rank([]entities.Substitute{a, b, c, d}, entities.Drug{})))
}

func TestRank_DrugIDBreaksNameTies(t *testing.T) {
	x := sub("x", entities.MatchExact, 100, 1, "1")
	y := sub("y", entities.MatchExact, 100, 1, "1")
	x.Name, y.Name = "Same", "Same"

	assert.Equal(t, []string{"x", "y"}, ids(Rank([]entities.Substitute{y, x}, entities.Drug{})))
	assert.Equal(t, []string{"x", "y"}, ids(Rank([]entities.Substitute{x, y}, entities.Drug{})))
}

func TestRank_DeterministicAcrossPermutations(t *testing.T) {
	subs := []entities.Substitute{
		sub("1", entities.MatchExact, 100, 0, "3"),
		sub("2", entities.MatchPartial, 70, 5, "3"),
		sub("3", entities.MatchPartial, 70, 5, "2"),
		sub("4", entities.MatchPartial, 85, 0, "1"),
		sub("5", entities.MatchExact, 100, 7, "8"),
		sub("6", entities.MatchPartial, 70, 5, "2"),
	}
	want := ids(Rank(subs, entities.Drug{}))

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]entities.Substitute(nil), subs...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, ids(Rank(shuffled, entities.Drug{})))
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	subs := []entities.Substitute{
		sub("b", entities.MatchPartial, 60, 0, "1"),
		sub("a", entities.MatchExact, 100, 0, "1"),
	}
	Rank(subs, entities.Drug{})
	assert.Equal(t, []string{"b", "a"}, ids(subs))

	assert.NotNil(t, Rank(nil, entities.Drug{}))
}
